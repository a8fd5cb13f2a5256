package receiver

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
	"github.com/sheerbytes/segfs/internal/progress"
	"github.com/sheerbytes/segfs/internal/store"
	"github.com/sheerbytes/segfs/internal/transport"
)

// Run parses args, receives one session and exits the process.
func Run(args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("segrecv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printReceiverUsage(fs, stderr) }
	cfg, err := config.ParseReceiverFlags(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "segrecv: %v\n", err)
		return 2
	}

	kind, _ := transport.ParseKind(cfg.Transport)
	mode, _ := progress.ParseMode(cfg.Progress)
	logger := logging.New("segrecv", cfg.LogLevel, stderr)
	if err := app.RunReceiver(ctx, logger, app.ReceiverConfig{
		Listen:    cfg.Listen,
		Remote:    cfg.Remote,
		Transport: kind,
		Out:       cfg.Out,
		StoreOptions: store.Options{
			S3Region:    cfg.S3Region,
			S3Endpoint:  cfg.S3Endpoint,
			S3PathStyle: cfg.S3PathStyle,
		},
		IdleTimeout:     cfg.IdleTimeout,
		DatagramSize:    cfg.DatagramSize,
		ReadBufferBytes: cfg.ReadBufferBytes,
		StunServers:     cfg.StunServers,
		MulticastGroup:  cfg.MulticastGroup,
		MulticastIface:  cfg.MulticastIface,
		Progress:        mode,
		Stdout:          stdout,
	}); err != nil {
		logger.Error("receive failed", "error", err)
		return 1
	}
	return 0
}

func printReceiverUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: segrecv [flags]")
	fmt.Fprintln(w, "receives segmented files and writes them once every file is complete")
	fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
	fmt.Fprintln(w, "every flag can also be set as SEGFS_<NAME> (e.g. SEGFS_IDLE_TIMEOUT=30s)")
	fmt.Fprintln(w, "or in the receiver section of the YAML file given by -config / SEGFS_CONFIG")
}
