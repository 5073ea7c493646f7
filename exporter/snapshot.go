// Package exporter is the offline path: a frozen timing context for
// deterministic frame-to-tick mapping, and an SMF renderer for compiled
// schedules. Nothing here touches the live transport.
package exporter

import (
	"github.com/Maokus/MVMNT-sub000/timing"
)

// Snapshot freezes tempo map, PPQ and rate at creation time. Identical
// inputs always yield identical outputs, regardless of live tempo edits made
// after the snapshot was taken.
type Snapshot struct {
	tmap *timing.TempoMap
	ppq  int
	rate float64
}

// NewSnapshot captures the given timing context. The tempo map is deep
// copied; a nil map freezes the default-bpm fallback. Non-positive rates are
// pinned to 1.
func NewSnapshot(tm *timing.TempoMap, rate float64) *Snapshot {
	if tm == nil {
		tm = timing.MustTempoMap(nil, timing.DefaultPPQ)
	}
	if rate <= 0 {
		rate = 1.0
	}
	return &Snapshot{tmap: tm.Clone(), ppq: tm.PPQ(), rate: rate}
}

// PPQ returns the frozen tick resolution.
func (s *Snapshot) PPQ() int { return s.ppq }

// Rate returns the frozen playback rate.
func (s *Snapshot) Rate() float64 { return s.rate }

// Entries returns the frozen tempo change points.
func (s *Snapshot) Entries() []timing.TempoEntry { return s.tmap.Entries() }

// FrameIndexToTick maps a video frame index at the given fps to a timeline
// tick, honoring the frozen rate.
func (s *Snapshot) FrameIndexToTick(frameIndex int, fps float64) int64 {
	if fps <= 0 {
		return 0
	}
	sec := float64(frameIndex) / fps * s.rate
	return s.tmap.SecondsToTicks(sec)
}

// TickToSeconds maps a timeline tick to seconds under the frozen tempo map.
func (s *Snapshot) TickToSeconds(tick int64) float64 {
	return s.tmap.TicksToSeconds(tick)
}
