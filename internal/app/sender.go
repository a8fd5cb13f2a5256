package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sheerbytes/segfs/internal/logging"
	"github.com/sheerbytes/segfs/internal/transport"
	"github.com/sheerbytes/segfs/pkg/manifest"
	"github.com/sheerbytes/segfs/pkg/packet"
)

// maxFilePackets is the number of distinct 16-bit packet numbers.
const maxFilePackets = 1 << 16

// ErrFileTooLarge is returned for files that need more packets than a
// packet number can address.
var ErrFileTooLarge = errors.New("file needs more than 65536 packets")

// SenderConfig configures the sender.
type SenderConfig struct {
	Target           string
	Listen           string // UDP only: await the receiver's request here instead of dialing Target
	Transport        transport.Kind
	PayloadSize      int
	Shuffle          bool
	Duplicate        float64
	Seed             int64 // 0 picks a time-based seed
	Interval         time.Duration
	FirstID          byte
	Files            []string // Files or directories
	WriteBufferBytes int
	MulticastTTL     int

	// Sink replaces the connection built from Target and Transport when set.
	Sink transport.Sink
}

// RunSender encodes every file into packets and sends them to the receiver.
func RunSender(ctx context.Context, logger *slog.Logger, cfg SenderConfig) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.PayloadSize <= 0 {
		cfg.PayloadSize = transport.DefaultRequestSize - packet.MinDataLen
	}
	if cfg.Transport == "" {
		cfg.Transport = transport.KindUDP
	}
	if len(cfg.Files) == 0 {
		return fmt.Errorf("no files to send")
	}
	logger, _ = logging.WithSession(logger)

	m, err := manifest.Build(cfg.Files)
	if err != nil {
		return fmt.Errorf("failed to scan files: %w", err)
	}
	if len(m.Entries) == 0 {
		return fmt.Errorf("no regular files found in %s", strings.Join(cfg.Files, ", "))
	}
	if int(cfg.FirstID)+len(m.Entries) > 256 {
		return fmt.Errorf("%d files starting at id %d exceed the 256 file ids", len(m.Entries), cfg.FirstID)
	}

	var datagrams [][]byte
	for i, e := range m.Entries {
		content, err := os.ReadFile(e.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", e.Path, err)
		}
		id := cfg.FirstID + byte(i)
		packets, err := FilePackets(id, e.Name, content, cfg.PayloadSize)
		if err != nil {
			return err
		}
		logger.Debug("file queued", "file_id", id, "name", e.Name, "bytes", len(content), "packets", len(packets))
		datagrams = append(datagrams, packets...)
	}
	logger.Info("files selected", "manifest_id", manifest.ID(m), "files", len(m.Entries), "bytes", m.TotalBytes)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	plan, dups := schedule(datagrams, cfg.Shuffle, cfg.Duplicate, rand.New(rand.NewSource(seed)))

	sink := cfg.Sink
	if sink == nil {
		var listen string
		if cfg.Transport == transport.KindUDP {
			listen = cfg.Listen
		}
		sink, err = transport.Dial(ctx, cfg.Transport, transport.SinkOptions{
			Target:           cfg.Target,
			Listen:           listen,
			WriteBufferBytes: cfg.WriteBufferBytes,
			MulticastTTL:     cfg.MulticastTTL,
			Logger:           logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
	}
	defer sink.Close()

	dest := cfg.Target
	if p, ok := sink.(interface{ Peer() net.Addr }); ok {
		dest = p.Peer().String()
	}
	logger.Info("sending",
		"target", dest,
		"files", len(m.Entries),
		"datagrams", len(plan),
		"duplicates", dups,
		"shuffle", cfg.Shuffle,
		"seed", seed,
	)
	start := time.Now()
	for i, d := range plan {
		if err := sink.WriteDatagram(ctx, d); err != nil {
			return fmt.Errorf("send datagram %d/%d: %w", i+1, len(plan), err)
		}
		if cfg.Interval > 0 && i < len(plan)-1 {
			if err := sleepCtx(ctx, cfg.Interval); err != nil {
				return err
			}
		}
	}
	logger.Info("send complete", "datagrams", len(plan), "bytes", m.TotalBytes, "elapsed", time.Since(start))
	return nil
}

// FilePackets encodes one file as a Header followed by its Data packets in
// packet-number order. An empty file becomes a single empty last packet.
func FilePackets(id byte, name string, content []byte, payloadSize int) ([][]byte, error) {
	if payloadSize <= 0 {
		return nil, fmt.Errorf("invalid payload size %d", payloadSize)
	}
	count := (len(content) + payloadSize - 1) / payloadSize
	if count == 0 {
		count = 1
	}
	if count > maxFilePackets {
		return nil, fmt.Errorf("%w: %s needs %d", ErrFileTooLarge, name, count)
	}

	header, err := packet.AppendHeader(nil, id, name)
	if err != nil {
		return nil, fmt.Errorf("file name %q: %w", name, err)
	}
	out := make([][]byte, 0, count+1)
	out = append(out, header)
	for i := 0; i < count; i++ {
		lo := i * payloadSize
		hi := min(lo+payloadSize, len(content))
		out = append(out, packet.AppendData(nil, id, uint16(i), i == count-1, content[lo:hi]))
	}
	return out, nil
}

// schedule returns the send order. Each datagram is repeated with
// probability duplicate; with shuffle the whole plan is permuted.
func schedule(datagrams [][]byte, shuffle bool, duplicate float64, rng *rand.Rand) ([][]byte, int) {
	plan := make([][]byte, 0, len(datagrams))
	dups := 0
	for _, d := range datagrams {
		plan = append(plan, d)
		if duplicate > 0 && rng.Float64() < duplicate {
			plan = append(plan, d)
			dups++
		}
	}
	if shuffle {
		rng.Shuffle(len(plan), func(i, j int) { plan[i], plan[j] = plan[j], plan[i] })
	}
	return plan, dups
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
