package server

import (
	"sync/atomic"
	"time"
)

// Metrics counts what the server loop and the I/O goroutines do, for the
// /metrics endpoint.
type Metrics struct {
	TickCount        int64
	TotalTickNs      int64
	CommandsAccepted int64
	RateLimited      int64 // commands refused past the per-tick cap
	InboxFull        int64 // messages dropped because the loop fell behind
	Malformed        int64
	Connects         int64
	Joins            int64
	Disconnects      int64
	SendFailures     int64
}

func (m *Metrics) IncAccepted()     { atomic.AddInt64(&m.CommandsAccepted, 1) }
func (m *Metrics) IncRateLimited()  { atomic.AddInt64(&m.RateLimited, 1) }
func (m *Metrics) IncInboxFull()    { atomic.AddInt64(&m.InboxFull, 1) }
func (m *Metrics) IncMalformed()    { atomic.AddInt64(&m.Malformed, 1) }
func (m *Metrics) IncConnects()     { atomic.AddInt64(&m.Connects, 1) }
func (m *Metrics) IncJoins()        { atomic.AddInt64(&m.Joins, 1) }
func (m *Metrics) IncDisconnects()  { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) IncSendFailures() { atomic.AddInt64(&m.SendFailures, 1) }

func (m *Metrics) AddTick(d time.Duration) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, d.Nanoseconds())
}

// Snapshot returns a copy suitable for JSON output.
func (m *Metrics) Snapshot() map[string]any {
	ticks := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / 1e6
	}
	return map[string]any{
		"tick_count":        ticks,
		"avg_tick_ms":       avgMs,
		"commands_accepted": atomic.LoadInt64(&m.CommandsAccepted),
		"rate_limited":      atomic.LoadInt64(&m.RateLimited),
		"inbox_full":        atomic.LoadInt64(&m.InboxFull),
		"malformed":         atomic.LoadInt64(&m.Malformed),
		"connects":          atomic.LoadInt64(&m.Connects),
		"joins":             atomic.LoadInt64(&m.Joins),
		"disconnects":       atomic.LoadInt64(&m.Disconnects),
		"send_failures":     atomic.LoadInt64(&m.SendFailures),
	}
}
