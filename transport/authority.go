package transport

import (
	"sync"

	"github.com/Maokus/MVMNT-sub000/debug"
	"github.com/Maokus/MVMNT-sub000/timing"
)

// Authority is the canonical tick store and single writer gate. It owns
// (currentTick, authority tag); seconds and beats are always derived through
// the tempo map at read time. The controller pushes transport status and
// loop configuration in so the gate can arbitrate without calling back out.
type Authority struct {
	mu   sync.Mutex
	tmap *timing.TempoMap
	grid timing.BarGrid

	tick int64
	tag  AuthorityTag

	status      Status
	loopEnabled bool
	loopStart   int64
	loopEnd     int64
	quantize    QuantizeMode
}

// NewAuthority creates an authority at tick 0 tagged AuthorityTick.
func NewAuthority(tm *timing.TempoMap, grid timing.BarGrid) *Authority {
	return &Authority{tmap: tm, grid: grid, tag: AuthorityTick}
}

// SetTick applies a tick-domain write from the given source. It returns the
// tick actually stored (after loop wrap) and whether the write was applied.
// Clock writes are dropped while the transport is paused so a stray clock
// update can never advance a paused timeline.
func (a *Authority) SetTick(tick int64, source AuthorityTag) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apply(tick, source)
}

// SetLegacySeconds accepts a position in the legacy seconds domain. The
// value is converted to ticks on entry; seconds is never independently
// authoritative.
func (a *Authority) SetLegacySeconds(sec float64) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apply(a.tmap.SecondsToTicks(sec), AuthorityLegacySeconds)
}

func (a *Authority) apply(tick int64, source AuthorityTag) (int64, bool) {
	switch source {
	case AuthorityClock:
		if a.status == StatusPaused {
			debug.Log("authority", "dropped clock write tick=%d while paused", tick)
			return a.tick, false
		}
		tick = a.wrap(tick)
	case AuthorityTick, AuthorityUser, AuthorityLegacySeconds:
		// Always applied regardless of transport status.
	}

	if tick < 0 {
		tick = 0
	}
	a.tick = tick
	a.tag = source
	return tick, true
}

// wrap applies the loop rule to clock advancement: reaching loopEnd lands
// back on loopStart (bar-snapped when quantize is on) before the new tick is
// ever published.
func (a *Authority) wrap(tick int64) int64 {
	if !a.loopEnabled || tick < a.loopEnd {
		return tick
	}
	start := a.loopStart
	if a.quantize == QuantizeBar {
		start = a.grid.FloorToBar(start)
	}
	debug.Log("authority", "loop wrap %d -> %d", tick, start)
	return start
}

// GetNow returns an immutable snapshot of the canonical position with
// derived beats and seconds.
func (a *Authority) GetNow() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Tick:      a.tick,
		Beats:     float64(a.tick) / float64(a.tmap.PPQ()),
		Seconds:   a.tmap.TicksToSeconds(a.tick),
		Authority: a.tag,
		Status:    a.status,
	}
}

// Tick returns the current canonical tick.
func (a *Authority) Tick() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tick
}

// setStatus is pushed by the controller on every transition.
func (a *Authority) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// setLoop is pushed by the controller when loop configuration changes.
func (a *Authority) setLoop(start, end int64, enabled bool, q QuantizeMode) {
	a.mu.Lock()
	a.loopStart, a.loopEnd, a.loopEnabled, a.quantize = start, end, enabled, q
	a.mu.Unlock()
}

// setTempoMap is pushed by the controller on an atomic map replacement.
func (a *Authority) setTempoMap(tm *timing.TempoMap) {
	a.mu.Lock()
	a.tmap = tm
	a.mu.Unlock()
}
