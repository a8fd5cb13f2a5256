package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sheerbytes/segfs/internal/bufpool"
	"github.com/sheerbytes/segfs/internal/filemanager"
	"github.com/sheerbytes/segfs/internal/logging"
	"github.com/sheerbytes/segfs/internal/progress"
	"github.com/sheerbytes/segfs/internal/store"
	"github.com/sheerbytes/segfs/internal/transport"
	"github.com/sheerbytes/segfs/pkg/packet"
)

// ErrIncomplete is returned when a session ends before every file is complete.
var ErrIncomplete = errors.New("transfer incomplete")

// missingListLimit bounds how many missing packet numbers are reported per file.
const missingListLimit = 8

const progressUpdateInterval = 250 * time.Millisecond

// ReceiverConfig configures the receiver.
type ReceiverConfig struct {
	Listen          string
	Remote          string
	Transport       transport.Kind
	Out             string
	StoreOptions    store.Options
	IdleTimeout     time.Duration
	DatagramSize    int
	ReadBufferBytes int
	StunServers     []string
	MulticastGroup  string
	MulticastIface  string
	Progress        progress.Mode
	// Stdout receives the progress view and completion messages.
	Stdout io.Writer

	// Source and Store replace the listener and output store built from
	// the fields above when set.
	Source transport.Source
	Store  store.Store
}

type datagram struct {
	buf []byte
	n   int
}

// RunReceiver receives packets until every announced file is complete, then
// writes them all to the output store.
func RunReceiver(ctx context.Context, logger *slog.Logger, cfg ReceiverConfig) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.DatagramSize <= 0 {
		cfg.DatagramSize = transport.DefaultRequestSize
	}
	if cfg.Transport == "" {
		cfg.Transport = transport.KindUDP
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Out == "" {
		cfg.Out = "."
	}
	logger, _ = logging.WithSession(logger)

	st := cfg.Store
	if st == nil {
		var err error
		st, err = store.Open(ctx, cfg.Out, cfg.StoreOptions)
		if err != nil {
			return fmt.Errorf("failed to open output: %w", err)
		}
	}

	src := cfg.Source
	if src == nil {
		var err error
		src, err = transport.Listen(ctx, cfg.Transport, transport.SourceOptions{
			Listen:          cfg.Listen,
			Remote:          cfg.Remote,
			RequestSize:     cfg.DatagramSize,
			ReadBufferBytes: cfg.ReadBufferBytes,
			StunServers:     cfg.StunServers,
			MulticastGroup:  cfg.MulticastGroup,
			MulticastIface:  cfg.MulticastIface,
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
	}
	defer src.Close()

	logger.Info("receive session started",
		"local_addr", src.LocalAddr(),
		"out", st.Location(),
		"idle_timeout", cfg.IdleTimeout,
	)

	r := &receiver{
		logger:     logger,
		cfg:        cfg,
		src:        src,
		store:      st,
		manager:    filemanager.New(),
		pool:       bufpool.New(cfg.DatagramSize + 1),
		meter:      progress.NewMeter(),
		lastClaims: make(map[byte]int),
		announced:  make(map[byte]bool),
		completed:  make(map[byte]bool),
	}
	return r.run(ctx)
}

type receiver struct {
	logger  *slog.Logger
	cfg     ReceiverConfig
	src     transport.Source
	store   store.Store
	manager *filemanager.Manager
	pool    *bufpool.Pool
	meter   *progress.Meter

	lastClaims map[byte]int
	announced  map[byte]bool
	completed  map[byte]bool

	viewMu      sync.Mutex
	rows        []progress.FileRow
	lastPublish time.Time
}

func (r *receiver) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.meter.Start()
	stopProgress := progress.RenderReceiver(ctx, r.cfg.Stdout, r.cfg.Progress, r.view, cancel)

	datagrams := make(chan datagram, 256)
	readErr := make(chan error, 1)
	readCtx, stopReading := context.WithCancel(ctx)
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		readErr <- r.readLoop(readCtx, datagrams)
		close(datagrams)
	}()
	defer func() {
		stopReading()
		readers.Wait()
	}()

	var idle *time.Timer
	var idleC <-chan time.Time
	if r.cfg.IdleTimeout > 0 {
		idle = time.NewTimer(r.cfg.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case d, ok := <-datagrams:
			if !ok {
				err := <-readErr
				stopProgress()
				return r.incomplete(fmt.Errorf("receive stopped: %w", err))
			}
			if idle != nil {
				idle.Reset(r.cfg.IdleTimeout)
			}
			if !r.handle(d) {
				continue
			}
			stopReading()
			r.publish(true)
			stopProgress()
			return r.finalize(ctx)
		case <-idleC:
			stopProgress()
			return r.incomplete(fmt.Errorf("no packet for %s", r.cfg.IdleTimeout))
		case <-ctx.Done():
			stopProgress()
			return r.incomplete(ctx.Err())
		}
	}
}

// readLoop owns the transport. Oversized datagrams are dropped here so the
// assembler only sees buffers that fit.
func (r *receiver) readLoop(ctx context.Context, out chan<- datagram) error {
	for {
		buf := r.pool.Get()
		n, err := r.src.ReadDatagram(ctx, buf)
		if err != nil {
			r.pool.Put(buf)
			if errors.Is(err, transport.ErrOversized) {
				r.dropOversized(len(buf))
				continue
			}
			return err
		}
		if n > r.cfg.DatagramSize {
			r.pool.Put(buf)
			r.dropOversized(n)
			continue
		}
		select {
		case out <- datagram{buf: buf, n: n}:
		case <-ctx.Done():
			r.pool.Put(buf)
			return ctx.Err()
		}
	}
}

func (r *receiver) dropOversized(n int) {
	r.meter.Drop()
	r.logger.Debug("dropping oversized datagram", "bytes", n, "limit", r.cfg.DatagramSize)
}

// handle decodes and routes one datagram and reports whether the session is
// complete.
func (r *receiver) handle(d datagram) bool {
	p, err := packet.Decode(d.buf[:d.n])
	r.pool.Put(d.buf)
	if err != nil {
		r.meter.Drop()
		r.logger.Debug("dropping malformed datagram", "error", err, "bytes", d.n)
		return false
	}
	r.meter.Add(d.n)

	id := p.FileID()
	g := r.manager.Route(p)
	switch p := p.(type) {
	case packet.Header:
		if !r.announced[id] {
			r.announced[id] = true
			r.logger.Info("file announced", "file_id", id, "name", p.Name)
		}
	case packet.Data:
		if p.Last {
			if claims := g.LastClaims(); len(claims) > 1 && len(claims) != r.lastClaims[id] {
				r.logger.Warn("conflicting last packet claims", "file_id", id, "claims", claims, "using", p.Number)
				r.lastClaims[id] = len(claims)
			}
		}
	}
	if !r.completed[id] && g.Named() && g.Complete() {
		r.completed[id] = true
		name, _ := g.Name()
		r.logger.Info("file complete", "file_id", id, "name", name, "packets", g.Received(), "bytes", g.Bytes())
	}

	r.publish(false)
	return r.manager.AllComplete()
}

func (r *receiver) finalize(ctx context.Context) error {
	fmt.Fprintln(r.cfg.Stdout, "All packets received. Writing files...")
	if err := r.manager.FinalizeAll(ctx, r.store); err != nil {
		r.logger.Error("writing files failed", "error", err)
		return err
	}
	fmt.Fprintln(r.cfg.Stdout, "Files written successfully.")
	stats := r.meter.Snapshot()
	r.logger.Info("receive session finished",
		"files", r.manager.Len(),
		"packets", stats.Packets,
		"dropped", stats.Dropped,
		"elapsed", stats.Elapsed,
		"out", r.store.Location(),
	)
	return nil
}

// incomplete reports what is missing and returns ErrIncomplete wrapped with
// the reason the session ended.
func (r *receiver) incomplete(cause error) error {
	summaries := r.manager.Summaries()
	if len(summaries) == 0 {
		r.logger.Warn("session ended before any packet arrived", "reason", cause)
		return fmt.Errorf("%w: no packets received: %w", ErrIncomplete, cause)
	}
	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if s.Named && s.Complete {
			continue
		}
		line := describeMissing(s, r.missing(s.ID))
		r.logger.Warn("file incomplete", "file_id", s.ID, "detail", line)
		lines = append(lines, line)
	}
	fmt.Fprintf(r.cfg.Stdout, "Transfer incomplete: %d of %d files missing data.\n", len(lines), len(summaries))
	for _, line := range lines {
		fmt.Fprintf(r.cfg.Stdout, "  %s\n", line)
	}
	return fmt.Errorf("%w (%w): %s", ErrIncomplete, cause, strings.Join(lines, "; "))
}

func (r *receiver) missing(id byte) []uint16 {
	g, ok := r.manager.Group(id)
	if !ok {
		return nil
	}
	return g.Missing(missingListLimit)
}

func describeMissing(s filemanager.FileSummary, missing []uint16) string {
	name := s.Name
	if !s.Named {
		name = "<no header>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "file %d (%s): ", s.ID, name)
	if s.Expected < 0 {
		fmt.Fprintf(&b, "%d packets, last packet not seen", s.Received)
		return b.String()
	}
	fmt.Fprintf(&b, "%d/%d packets", s.Expected-s.Missing, s.Expected)
	if len(missing) > 0 {
		nums := make([]string, len(missing))
		for i, n := range missing {
			nums[i] = fmt.Sprintf("%d", n)
		}
		fmt.Fprintf(&b, ", missing %s", strings.Join(nums, ","))
		if s.Missing > len(missing) {
			b.WriteString(",...")
		}
	}
	return b.String()
}

// publish copies per-file state for the progress view. The manager is only
// touched from the assembler goroutine.
func (r *receiver) publish(force bool) {
	now := time.Now()
	if !force && now.Sub(r.lastPublish) < progressUpdateInterval {
		return
	}
	r.lastPublish = now
	summaries := r.manager.Summaries()
	rows := make([]progress.FileRow, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, progress.FileRow{
			ID:       s.ID,
			Name:     s.Name,
			Received: s.Received,
			Expected: s.Expected,
			Bytes:    s.Bytes,
			Complete: s.Named && s.Complete,
		})
	}
	r.viewMu.Lock()
	r.rows = rows
	r.viewMu.Unlock()
}

func (r *receiver) view() progress.ReceiverView {
	r.viewMu.Lock()
	rows := r.rows
	r.viewMu.Unlock()
	return progress.ReceiverView{
		Location:  r.store.Location(),
		Transport: fmt.Sprintf("%s on %s", r.cfg.Transport, r.src.LocalAddr()),
		Stats:     r.meter.Snapshot(),
		Files:     rows,
	}
}
