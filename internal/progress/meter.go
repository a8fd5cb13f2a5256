package progress

import (
	"sync"
	"time"
)

// Stats represents a point-in-time snapshot of receive progress.
type Stats struct {
	Packets   int64
	Dropped   int64
	Bytes     int64
	RateBps   float64
	StartedAt time.Time
	Elapsed   time.Duration
}

// Meter counts received packets and bytes and computes a smoothed byte rate.
type Meter struct {
	mu        sync.Mutex
	packets   int64
	dropped   int64
	done      int64
	startedAt time.Time
	lastAt    time.Time
	lastDone  int64
	rateBps   float64
	alpha     float64
	now       func() time.Time
}

// NewMeter returns a meter with a default smoothing factor.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{alpha: 0.2, now: now}
}

// Start resets the counters and marks the start time.
func (m *Meter) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = 0
	m.dropped = 0
	m.done = 0
	m.startedAt = m.now()
	m.lastAt = m.startedAt
	m.lastDone = 0
	m.rateBps = 0
}

// Add records one accepted packet of n bytes.
func (m *Meter) Add(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets++
	if n <= 0 {
		return
	}
	now := m.now()
	m.done += int64(n)
	deltaBytes := m.done - m.lastDone
	deltaTime := now.Sub(m.lastAt).Seconds()
	if deltaTime > 0 {
		inst := float64(deltaBytes) / deltaTime
		if m.rateBps == 0 {
			m.rateBps = inst
		} else {
			m.rateBps = m.alpha*inst + (1-m.alpha)*m.rateBps
		}
		m.lastAt = now
		m.lastDone = m.done
	}
}

// Drop records one datagram that was discarded.
func (m *Meter) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

// Snapshot returns a current snapshot of progress stats.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		Packets:   m.packets,
		Dropped:   m.dropped,
		Bytes:     m.done,
		RateBps:   m.rateBps,
		StartedAt: m.startedAt,
	}
	if !m.startedAt.IsZero() {
		stats.Elapsed = m.now().Sub(m.startedAt)
	}
	return stats
}
