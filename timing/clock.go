package timing

import "math"

// maxStepMs caps the elapsed time credited to a single update. A machine
// suspend or a stalled frame loop otherwise shows up as one huge delta and
// the playhead leaps forward to "catch up". Excess time is dropped, not
// recovered.
const maxStepMs = 250.0

// fracEpsilon absorbs accumulated float error when whole ticks are
// extracted from the remainder. Without it a remainder that should be
// exactly N floors to N-1 and the position drifts one tick low.
const fracEpsilon = 1e-9

// PlaybackClock integrates wall-clock time into a monotonic tick stream.
// Fractional ticks are accumulated here and nowhere else; everything
// downstream sees whole ticks only.
type PlaybackClock struct {
	tmap *TempoMap

	tick      int64
	frac      float64
	anchorMs  float64
	rate      float64
	paused    bool
	anchorSet bool
}

// NewPlaybackClock creates a paused clock at tick 0 with rate 1.
func NewPlaybackClock(tm *TempoMap) *PlaybackClock {
	return &PlaybackClock{tmap: tm, rate: 1.0, paused: true}
}

// Update advances the clock to nowMs and returns the current tick.
// While paused the position is untouched but the anchor still follows the
// wall clock, so a long pause never turns into a jump on resume.
func (c *PlaybackClock) Update(nowMs float64) int64 {
	if !c.anchorSet {
		c.anchorMs = nowMs
		c.anchorSet = true
	}

	if c.paused {
		c.anchorMs = nowMs
		return c.tick
	}

	elapsed := nowMs - c.anchorMs
	c.anchorMs = nowMs
	if elapsed <= 0 {
		return c.tick
	}
	if elapsed > maxStepMs {
		elapsed = maxStepMs
	}

	spb := c.tmap.SecondsPerBeatAtTick(c.tick)
	beats := (elapsed / 1000.0) * c.rate / spb
	c.frac += beats * float64(c.tmap.PPQ())

	whole := math.Floor(c.frac + fracEpsilon)
	c.tick += int64(whole)
	c.frac -= whole
	if c.frac < 0 {
		c.frac = 0
	}
	return c.tick
}

// Pause freezes the position. Keeps calling Update safe: the anchor keeps
// tracking wall time while frozen.
func (c *PlaybackClock) Pause() { c.paused = true }

// Resume re-anchors at nowMs so the next Update only accounts for that
// frame's delta, not the paused gap.
func (c *PlaybackClock) Resume(nowMs float64) {
	c.anchorMs = nowMs
	c.anchorSet = true
	c.paused = false
}

// SetTick hard-resets the position and clears the fractional remainder.
// Used after a seek or a quantize snap so no sub-tick drift is inherited.
func (c *PlaybackClock) SetTick(tick int64) {
	c.tick = tick
	c.frac = 0
}

// SetRate sets the playback rate multiplier.
func (c *PlaybackClock) SetRate(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	c.rate = rate
	return nil
}

// SetTempoMap swaps in a replacement map. The tick position is canonical so
// it carries over untouched; only the seconds mapping changes.
func (c *PlaybackClock) SetTempoMap(tm *TempoMap) { c.tmap = tm }

// Tick returns the current integer tick.
func (c *PlaybackClock) Tick() int64 { return c.tick }

// Rate returns the playback rate multiplier.
func (c *PlaybackClock) Rate() float64 { return c.rate }

// Paused reports whether the clock is frozen.
func (c *PlaybackClock) Paused() bool { return c.paused }
