package services

import (
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/models"
)

// fixedRandom returns the same draw every time.
type fixedRandom struct {
	f float64
	n int
}

func (r fixedRandom) Float64() float64 { return r.f }

func (r fixedRandom) Intn(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

// testClock is a settable clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func day(s string) time.Time {
	return models.MustParseDate(s).Time().Add(9 * time.Hour)
}

func testEntry(symbol string, issuePrice float64, lotSize int, open, close string) models.CatalogEntry {
	return seedEntry(symbol, symbol+" Ltd", "Technology", issuePrice, lotSize, models.RiskMedium,
		open, close, models.MustParseDate(close).AddDays(3).String(), models.PhaseOpen)
}

type pendingTimer struct {
	d time.Duration
	f func()
}

// manualTimers records TimerFunc registrations so tests fire them explicitly.
type manualTimers struct {
	mu      sync.Mutex
	pending []pendingTimer
}

func (m *manualTimers) After(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, pendingTimer{d: d, f: f})
}

func (m *manualTimers) Durations() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p.d)
	}
	return out
}

// FireNext runs the registered callback with the shortest delay.
func (m *manualTimers) FireNext() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	next := 0
	for i, p := range m.pending {
		if p.d < m.pending[next].d {
			next = i
		}
	}
	p := m.pending[next]
	m.pending = append(m.pending[:next], m.pending[next+1:]...)
	m.mu.Unlock()

	p.f()
	return true
}

func (m *manualTimers) FireAll() {
	for m.FireNext() {
	}
}
