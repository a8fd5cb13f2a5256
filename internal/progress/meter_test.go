package progress

import (
	"testing"
	"time"
)

func TestMeterRate(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start()

	now = now.Add(1 * time.Second)
	m.Add(1000)

	stats := m.Snapshot()
	if stats.Bytes != 1000 || stats.Packets != 1 {
		t.Fatalf("expected 1 packet / 1000 bytes, got %d / %d", stats.Packets, stats.Bytes)
	}
	if stats.RateBps < 900 || stats.RateBps > 1100 {
		t.Fatalf("expected rate around 1000 B/s, got %.2f", stats.RateBps)
	}
	if stats.Elapsed != time.Second {
		t.Fatalf("expected elapsed 1s, got %s", stats.Elapsed)
	}
}

func TestMeterEWMASmoothing(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start()

	now = now.Add(1 * time.Second)
	m.Add(1000)

	now = now.Add(1 * time.Second)
	m.Add(3000)

	stats := m.Snapshot()
	if stats.RateBps < 1300 || stats.RateBps > 1500 {
		t.Fatalf("expected smoothed rate around 1400 B/s, got %.2f", stats.RateBps)
	}
}

func TestMeterCountsEmptyPacketsAndDrops(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start()

	m.Add(0)
	m.Add(0)
	m.Drop()

	stats := m.Snapshot()
	if stats.Packets != 2 {
		t.Fatalf("expected 2 packets, got %d", stats.Packets)
	}
	if stats.Dropped != 1 {
		t.Fatalf("expected 1 drop, got %d", stats.Dropped)
	}
	if stats.RateBps != 0 {
		t.Fatalf("expected rate 0, got %.2f", stats.RateBps)
	}
}
