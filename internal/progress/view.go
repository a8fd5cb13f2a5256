package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// FileRow is the display state of one file id.
type FileRow struct {
	ID       byte
	Name     string
	Received int
	Expected int // -1 while unknown
	Bytes    int64
	Complete bool
}

// ReceiverView is everything the receiver renders on one frame.
type ReceiverView struct {
	Location  string
	Transport string
	Stats     Stats
	Files     []FileRow
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// CounterLine is the single-line packet counter.
func CounterLine(v ReceiverView) string {
	return fmt.Sprintf("Packets received: [%d]", v.Stats.Packets)
}

// renderPlain redraws the counter at most once per tick. On a terminal the
// line is rewritten in place; otherwise one line is printed per change.
func renderPlain(ctx context.Context, w io.Writer, view func() ReceiverView) func() {
	inPlace := IsTTY(w)
	interval := 100 * time.Millisecond
	if !inPlace {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	var renderMu sync.Mutex
	last := int64(-1)

	renderOnce := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		v := view()
		if v.Stats.Packets == last {
			return
		}
		last = v.Stats.Packets
		if inPlace {
			fmt.Fprintf(w, "\r%s", CounterLine(v))
		} else {
			fmt.Fprintln(w, CounterLine(v))
		}
	}

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				renderOnce()
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		renderOnce()
		if inPlace {
			fmt.Fprintln(w)
		}
	}
}

func renderReceiverTTY(v ReceiverView) string {
	var b strings.Builder
	if v.Location != "" {
		fmt.Fprintln(&b, locationStyle.Render("saving to "+v.Location))
	}
	if v.Transport != "" {
		fmt.Fprintln(&b, transportStyle.Render("transport: "+v.Transport))
	}
	fmt.Fprintln(&b, summaryStyle.Render(formatReceiverLine(v)))
	if len(v.Files) > 0 {
		headers := []string{"id", "name", "packets", "%", "size", "state"}
		widths := []int{3, 28, 13, 5, 10, 8}
		rows := make([][]string, 0, len(v.Files))
		for _, f := range v.Files {
			rows = append(rows, []string{
				fmt.Sprintf("%d", f.ID),
				formatName(f.Name, widths[1]),
				formatPackets(f.Received, f.Expected),
				formatPercent(f.Received, f.Expected),
				formatBytes(f.Bytes),
				styledState(f, widths[5]),
			})
		}
		_ = renderTable(&b, headers, rows, widths)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatReceiverLine(v ReceiverView) string {
	line := fmt.Sprintf("%s  %s  %s  elapsed %s",
		CounterLine(v),
		formatBytes(v.Stats.Bytes),
		formatRate(v.Stats.RateBps),
		formatElapsed(v.Stats.Elapsed),
	)
	if v.Stats.Dropped > 0 {
		line += fmt.Sprintf("  dropped=%s", formatCount(v.Stats.Dropped))
	}
	return line
}

func renderTable(w io.Writer, headers []string, rows [][]string, widths []int) int {
	lines := 0
	border := buildBorder(widths)
	fmt.Fprintln(w, border)
	lines++
	fmt.Fprintln(w, buildRow(headers, widths))
	lines++
	fmt.Fprintln(w, border)
	lines++
	for _, row := range rows {
		fmt.Fprintln(w, buildRow(row, widths))
		lines++
	}
	fmt.Fprintln(w, border)
	lines++
	return lines
}

func buildBorder(widths []int) string {
	var b strings.Builder
	b.WriteString("+")
	for _, width := range widths {
		b.WriteString(strings.Repeat("-", width+2))
		b.WriteString("+")
	}
	return b.String()
}

func buildRow(values []string, widths []int) string {
	var b strings.Builder
	b.WriteString("|")
	for i, width := range widths {
		cell := ""
		if i < len(values) {
			cell = values[i]
		}
		b.WriteString(" ")
		b.WriteString(padRight(cell, width))
		b.WriteString(" |")
	}
	return b.String()
}

func padRight(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func formatName(name string, width int) string {
	if name == "" {
		return "-"
	}
	r := []rune(name)
	if len(r) <= width {
		return name
	}
	return string(r[:width-1]) + "~"
}

func formatPackets(received, expected int) string {
	if expected < 0 {
		return fmt.Sprintf("%d/?", received)
	}
	return fmt.Sprintf("%d/%d", received, expected)
}

func formatPercent(received, expected int) string {
	if expected <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", float64(received)/float64(expected)*100)
}

func formatState(f FileRow) string {
	switch {
	case f.Complete:
		return "done"
	case f.Name == "":
		return "unnamed"
	default:
		return "partial"
	}
}

// styledState pads before styling so escape codes do not count toward the
// column width.
func styledState(f FileRow, width int) string {
	state := formatState(f)
	return stateStyle(state).Render(padRight(state, width))
}

func formatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	if bps >= g {
		return fmt.Sprintf("%.2f GB/s", bps/float64(g))
	}
	if bps >= m {
		return fmt.Sprintf("%.1f MB/s", bps/float64(m))
	}
	if bps >= k {
		return fmt.Sprintf("%.0f KB/s", bps/float64(k))
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

func formatBytes(n int64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	switch {
	case n >= g:
		return fmt.Sprintf("%.2f GiB", float64(n)/float64(g))
	case n >= m:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(m))
	case n >= k:
		return fmt.Sprintf("%.1f KiB", float64(n)/float64(k))
	case n < 0:
		return "0 B"
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatCount(n int64) string {
	if n < 0 {
		n = 0
	}
	const (
		k = 1000
		m = 1000 * k
	)
	switch {
	case n >= m:
		return fmt.Sprintf("%.1fM", float64(n)/float64(m))
	case n >= k:
		return fmt.Sprintf("%.1fk", float64(n)/float64(k))
	default:
		return fmt.Sprintf("%d", n)
	}
}
