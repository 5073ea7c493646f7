package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Maokus/MVMNT-sub000/debug"
	"github.com/Maokus/MVMNT-sub000/timing"
)

// Controller is the transport state machine. It owns the playback clock,
// the current tempo map, loop/quantize/rate configuration, and the epoch
// counter that invalidates in-flight scheduler work. All position writes go
// through the Authority gate.
type Controller struct {
	mu sync.Mutex

	tmap  *timing.TempoMap
	clock *timing.PlaybackClock
	grid  timing.BarGrid
	auth  *Authority

	status      Status
	loopEnabled bool
	loopStart   int64
	loopEnd     int64
	quantize    QuantizeMode
	contentMax  int64

	epoch atomic.Uint64
	wraps atomic.Uint64
}

// NewController builds a controller around a tempo map. beatsPerBar is fixed
// for the session.
func NewController(tm *timing.TempoMap, beatsPerBar int) *Controller {
	grid := timing.NewBarGrid(tm.PPQ(), beatsPerBar)
	return &Controller{
		tmap:   tm,
		clock:  timing.NewPlaybackClock(tm),
		grid:   grid,
		auth:   NewAuthority(tm, grid),
		status: StatusIdle,
	}
}

// Authority exposes the single writer gate for readers and legacy writers.
func (c *Controller) Authority() *Authority { return c.auth }

// Now returns the current position snapshot.
func (c *Controller) Now() Snapshot { return c.auth.GetNow() }

// TempoMap returns the live tempo map. Maps are immutable, so handing out
// the pointer is safe; edits arrive as whole-map replacements.
func (c *Controller) TempoMap() *timing.TempoMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tmap
}

// Epoch returns the current scheduling generation. Seeks and tempo edits
// bump it; batches compiled under an older value are stale.
func (c *Controller) Epoch() uint64 { return c.epoch.Load() }

// Status returns the state machine position.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Play transitions Idle/Paused -> Playing. With bar quantize on, the
// position snaps down to the bar boundary first and the clock is hard-reset
// there so no fractional drift is inherited.
func (c *Controller) Play(nowMs float64) []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusPlaying {
		return nil
	}

	if c.quantize == QuantizeBar {
		snapped := c.grid.FloorToBar(c.auth.Tick())
		c.auth.SetTick(snapped, AuthorityUser)
		c.clock.SetTick(snapped)
	} else {
		c.clock.SetTick(c.auth.Tick())
	}

	c.clock.Resume(nowMs)
	c.setStatus(StatusPlaying)
	debug.Log("transport", "play tick=%d", c.auth.Tick())
	return nil
}

// Pause transitions Playing -> Paused without touching the position.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusPlaying {
		return
	}
	c.clock.Pause()
	c.setStatus(StatusPaused)
	debug.Log("transport", "pause tick=%d", c.auth.Tick())
}

// SeekTick moves the position from any state, clamping to [0, contentMax]. The
// transport passes through Seeking and returns to its previous mode; the
// epoch is bumped so in-flight schedules for the old position are dropped.
func (c *Controller) SeekTick(tick int64) []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()

	var warns []Warning
	clamped := tick
	if clamped < 0 {
		clamped = 0
	}
	if c.contentMax > 0 && clamped > c.contentMax {
		clamped = c.contentMax
	}
	if clamped != tick {
		warns = append(warns, warnf(WarnSeekClamped, "seek %d clamped to %d", tick, clamped))
	}

	prev := c.status
	c.setStatus(StatusSeeking)
	c.auth.SetTick(clamped, AuthorityUser)
	c.clock.SetTick(clamped)
	c.epoch.Add(1)
	c.setStatus(prev)
	debug.Log("transport", "seek tick=%d epoch=%d", clamped, c.epoch.Load())
	return warns
}

// SetLoop configures the loop region. An empty or inverted range disables
// looping with a warning rather than failing.
func (c *Controller) SetLoop(start, end int64, enabled bool) []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()

	var warns []Warning
	if enabled && end <= start {
		enabled = false
		warns = append(warns, warnf(WarnLoopDisabled, "loop range [%d,%d) is empty, loop disabled", start, end))
	}
	c.loopStart, c.loopEnd, c.loopEnabled = start, end, enabled
	c.auth.setLoop(start, end, enabled, c.quantize)
	return warns
}

// Loop returns the loop configuration.
func (c *Controller) Loop() (start, end int64, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopStart, c.loopEnd, c.loopEnabled
}

// SetQuantize selects the snap grid used by Play and loop wrap.
func (c *Controller) SetQuantize(mode QuantizeMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quantize = mode
	c.auth.setLoop(c.loopStart, c.loopEnd, c.loopEnabled, mode)
}

// Quantize returns the snap mode.
func (c *Controller) Quantize() QuantizeMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quantize
}

// SetRate sets the playback rate multiplier.
func (c *Controller) SetRate(rate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.clock.SetRate(rate); err != nil {
		return fmt.Errorf("set rate %v: %w", rate, err)
	}
	return nil
}

// Rate returns the playback rate multiplier.
func (c *Controller) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Rate()
}

// SetTempoMap atomically replaces the tempo map. Invalid entries are
// rejected and the previous map stays in effect; the caller gets the
// validation error plus a retained-fallback warning. On success the epoch is
// bumped so stale schedules are recompiled under the new map.
func (c *Controller) SetTempoMap(entries []timing.TempoEntry) ([]Warning, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm, err := timing.NewTempoMap(entries, c.tmap.PPQ())
	if err != nil {
		return []Warning{warnf(WarnTempoMapRetained, "previous tempo map retained: %v", err)}, err
	}

	c.tmap = tm
	c.clock.SetTempoMap(tm)
	c.auth.setTempoMap(tm)
	c.epoch.Add(1)
	debug.Log("transport", "tempo map replaced, %d entries, epoch=%d", len(entries), c.epoch.Load())
	return nil, nil
}

// SetContentMax sets the seek clamp bound, normally the last event tick of
// the loaded content. Zero means unbounded.
func (c *Controller) SetContentMax(tick int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tick < 0 {
		tick = 0
	}
	c.contentMax = tick
}

// ContentMax returns the seek clamp bound.
func (c *Controller) ContentMax() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contentMax
}

// Grid returns the session bar grid.
func (c *Controller) Grid() timing.BarGrid { return c.grid }

// Update advances the transport by one frame and returns the resulting
// snapshot. While playing the clock's tick is pushed through the authority
// gate; if the gate wrapped it (loop), the clock is re-seated on the wrapped
// position so the fractional remainder restarts clean.
func (c *Controller) Update(nowMs float64) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.clock.Update(nowMs)
	if c.status == StatusPlaying {
		applied, ok := c.auth.SetTick(t, AuthorityClock)
		if ok && applied != t {
			c.clock.SetTick(applied)
			c.wraps.Add(1)
		}
	}
	return c.auth.GetNow()
}

// Wraps counts loop wraps applied to clock advancement. Consumers holding
// per-pass dispatch state compare it across frames and flush on change, so
// the loop region's events replay on every pass.
func (c *Controller) Wraps() uint64 { return c.wraps.Load() }

// setStatus keeps the authority's gate in step with every transition.
// Callers hold c.mu.
func (c *Controller) setStatus(s Status) {
	c.status = s
	c.auth.setStatus(s)
}
