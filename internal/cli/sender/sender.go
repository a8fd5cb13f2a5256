package sender

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheerbytes/segfs/internal/app"
	"github.com/sheerbytes/segfs/internal/config"
	"github.com/sheerbytes/segfs/internal/logging"
	"github.com/sheerbytes/segfs/internal/transport"
)

// Run parses args, sends the named files and exits the process.
func Run(args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, args, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("segsend", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printSenderUsage(fs, stderr) }
	cfg, err := config.ParseSenderFlags(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "segsend: %v\n", err)
		if errors.Is(err, config.ErrNoFiles) {
			printSenderUsage(fs, stderr)
		}
		return 2
	}

	kind, _ := transport.ParseKind(cfg.Transport)
	logger := logging.New("segsend", cfg.LogLevel, stderr)
	if err := app.RunSender(ctx, logger, app.SenderConfig{
		Target:       cfg.Target,
		Listen:       cfg.Listen,
		Transport:    kind,
		PayloadSize:  cfg.PayloadSize,
		Shuffle:      cfg.Shuffle,
		Duplicate:    cfg.Duplicate,
		Seed:         cfg.Seed,
		Interval:     cfg.Interval,
		FirstID:      byte(cfg.FirstID),
		Files:        cfg.Files,
		MulticastTTL: cfg.MulticastTTL,
	}); err != nil {
		logger.Error("send failed", "error", err)
		return 1
	}
	return 0
}

func printSenderUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: segsend [flags] <path> [path...]")
	fmt.Fprintln(w, "splits files (directories are expanded) into packets and sends them to a segrecv receiver")
	fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
}
