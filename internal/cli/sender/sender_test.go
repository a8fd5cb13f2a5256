package sender

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunNoFiles(t *testing.T) {
	os.Clearenv()
	var stderr bytes.Buffer
	if code := run(context.Background(), nil, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: segsend") {
		t.Fatalf("expected usage, got %q", stderr.String())
	}
}

func TestRunMissingFile(t *testing.T) {
	os.Clearenv()
	var stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "missing.bin")
	if code := run(context.Background(), []string{missing}, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "send failed") {
		t.Fatalf("expected failure log, got %q", stderr.String())
	}
}
