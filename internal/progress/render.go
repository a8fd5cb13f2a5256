package progress

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Mode selects how receive progress is shown.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeTTY   Mode = "tty"
	ModePlain Mode = "plain"
	ModeOff   Mode = "off"
)

// ParseMode maps a config value to a Mode. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeTTY:
		return ModeTTY, nil
	case ModePlain:
		return ModePlain, nil
	case ModeOff:
		return ModeOff, nil
	default:
		return "", fmt.Errorf("unknown progress mode %q (want auto, tty, plain or off)", s)
	}
}

// Resolve turns ModeAuto into ModeTTY or ModePlain depending on w.
func (m Mode) Resolve(w io.Writer) Mode {
	if m != ModeAuto {
		return m
	}
	if IsTTY(w) {
		return ModeTTY
	}
	return ModePlain
}

// RenderReceiver starts drawing view to w until ctx is done or the returned
// stop function is called. stop draws one final frame and returns once the
// terminal is released. onInterrupt runs on Ctrl-C in TTY mode.
func RenderReceiver(ctx context.Context, w io.Writer, mode Mode, view func() ReceiverView, onInterrupt func()) func() {
	switch mode.Resolve(w) {
	case ModeTTY:
		return renderReceiverTea(ctx, w, view, onInterrupt)
	case ModePlain:
		return renderPlain(ctx, w, view)
	default:
		return func() {}
	}
}
