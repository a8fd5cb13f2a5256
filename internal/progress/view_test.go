package progress

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeAuto},
		{in: "auto", want: ModeAuto},
		{in: "TTY", want: ModeTTY},
		{in: " plain", want: ModePlain},
		{in: "off", want: ModeOff},
		{in: "fancy", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseMode(%q) error = %v", tt.in, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestModeResolveNonTTY(t *testing.T) {
	var buf bytes.Buffer
	if got := ModeAuto.Resolve(&buf); got != ModePlain {
		t.Fatalf("expected plain for a buffer, got %q", got)
	}
	if got := ModeOff.Resolve(&buf); got != ModeOff {
		t.Fatalf("expected off to stay off, got %q", got)
	}
}

func TestIsTTYFalseForNonTerminals(t *testing.T) {
	if IsTTY(&bytes.Buffer{}) {
		t.Fatalf("buffer reported as terminal")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if IsTTY(f) {
		t.Fatalf("regular file reported as terminal")
	}
}

func TestCounterLine(t *testing.T) {
	v := ReceiverView{Stats: Stats{Packets: 42}}
	if got := CounterLine(v); got != "Packets received: [42]" {
		t.Fatalf("unexpected counter line %q", got)
	}
}

func TestRenderPlainFinalFrame(t *testing.T) {
	var buf bytes.Buffer
	var packets atomic.Int64
	view := func() ReceiverView {
		return ReceiverView{Stats: Stats{Packets: packets.Load()}}
	}
	stop := RenderReceiver(context.Background(), &buf, ModePlain, view, nil)
	packets.Store(7)
	stop()

	out := buf.String()
	if !strings.Contains(out, "Packets received: [7]\n") {
		t.Fatalf("expected final counter line, got %q", out)
	}
	if strings.Contains(out, "\r") {
		t.Fatalf("non-terminal output should not rewrite lines: %q", out)
	}
}

func TestRenderOffWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	stop := RenderReceiver(context.Background(), &buf, ModeOff, func() ReceiverView { return ReceiverView{} }, nil)
	stop()
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestRenderReceiverTTYRows(t *testing.T) {
	v := ReceiverView{
		Location:  "/tmp/out",
		Transport: "udp",
		Stats:     Stats{Packets: 3, Bytes: 2048, Dropped: 1, Elapsed: 2 * time.Second},
		Files: []FileRow{
			{ID: 1, Name: "a.txt", Received: 2, Expected: 2, Bytes: 6, Complete: true},
			{ID: 4, Received: 1, Expected: -1},
		},
	}
	out := renderReceiverTTY(v)
	for _, want := range []string{
		"saving to /tmp/out",
		"Packets received: [3]",
		"2.0 KiB",
		"dropped=1",
		"00:00:02",
		"a.txt",
		"2/2",
		"done",
		"1/?",
		"unnamed",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatName(t *testing.T) {
	if got := formatName("", 10); got != "-" {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := formatName("abcdefghijkl", 5); got != "abcd~" {
		t.Fatalf("expected truncated name, got %q", got)
	}
}

func TestTeaModelInterrupt(t *testing.T) {
	called := false
	m := receiverTeaModel{
		viewFn:      func() ReceiverView { return ReceiverView{Stats: Stats{Packets: 5}} },
		onInterrupt: func() { called = true },
	}
	next, _ := m.Update(tickMsg{})
	if got := next.(receiverTeaModel).view.Stats.Packets; got != 5 {
		t.Fatalf("expected refreshed view, got %d packets", got)
	}
	next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !called {
		t.Fatalf("expected interrupt callback")
	}
	if _, cmd := next.Update(stopMsg{}); cmd == nil {
		t.Fatalf("expected quit command on stop")
	}
}
