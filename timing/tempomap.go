// Package timing converts between the three time domains of the engine:
// wall seconds, musical beats, and integer ticks. Ticks are canonical;
// everything else is derived through a TempoMap.
package timing

import (
	"fmt"
	"sort"
)

const (
	// DefaultPPQ is the tick resolution used when the caller doesn't supply one.
	DefaultPPQ = 480

	// DefaultBPM is the fallback tempo for an empty tempo map.
	DefaultBPM = 120.0
)

// TempoEntry is a tempo change point on the timeline.
type TempoEntry struct {
	TimeSec float64 `json:"timeSec"`
	BPM     float64 `json:"bpm"`
}

// segment is a precomputed tempo span. startBeats is the cumulative beat
// count at the segment's start, so conversions inside a segment are a single
// linear interpolation.
type segment struct {
	startSec   float64
	startBeats float64
	bpm        float64
}

// TempoMap converts between seconds, beats and ticks. Maps are immutable
// once built; tempo edits replace the whole map.
type TempoMap struct {
	segments []segment
	ppq      int
}

// NewTempoMap builds a map from tempo entries. Entries must be strictly
// ascending in time with positive bpm, otherwise ErrInvalidTempoMap is
// returned and the caller keeps whatever map it already had. An empty entry
// list yields a valid map pinned to DefaultBPM.
func NewTempoMap(entries []TempoEntry, ppq int) (*TempoMap, error) {
	if ppq <= 0 {
		ppq = DefaultPPQ
	}

	if len(entries) == 0 {
		return &TempoMap{
			segments: []segment{{startSec: 0, startBeats: 0, bpm: DefaultBPM}},
			ppq:      ppq,
		}, nil
	}

	segs := make([]segment, 0, len(entries))
	beats := 0.0
	for i, e := range entries {
		if e.BPM <= 0 {
			return nil, fmt.Errorf("%w: entry %d has bpm %v", ErrInvalidTempoMap, i, e.BPM)
		}
		if i > 0 {
			prev := entries[i-1]
			if e.TimeSec <= prev.TimeSec {
				return nil, fmt.Errorf("%w: entry %d time %v not after %v",
					ErrInvalidTempoMap, i, e.TimeSec, prev.TimeSec)
			}
			beats += (e.TimeSec - prev.TimeSec) * prev.BPM / 60.0
		}
		segs = append(segs, segment{startSec: e.TimeSec, startBeats: beats, bpm: e.BPM})
	}

	return &TempoMap{segments: segs, ppq: ppq}, nil
}

// MustTempoMap is NewTempoMap for literals known to be valid (tests, defaults).
func MustTempoMap(entries []TempoEntry, ppq int) *TempoMap {
	tm, err := NewTempoMap(entries, ppq)
	if err != nil {
		panic(err)
	}
	return tm
}

// PPQ returns the tick resolution in pulses per quarter note.
func (tm *TempoMap) PPQ() int { return tm.ppq }

// Entries returns a copy of the tempo change points, suitable for persistence.
func (tm *TempoMap) Entries() []TempoEntry {
	out := make([]TempoEntry, len(tm.segments))
	for i, s := range tm.segments {
		out[i] = TempoEntry{TimeSec: s.startSec, BPM: s.bpm}
	}
	return out
}

// Clone returns an independent copy. Export snapshots use this so live
// tempo edits can never reach them.
func (tm *TempoMap) Clone() *TempoMap {
	segs := make([]segment, len(tm.segments))
	copy(segs, tm.segments)
	return &TempoMap{segments: segs, ppq: tm.ppq}
}

// segmentAtSec locates the segment containing sec. Times before the first
// entry use the first segment; times past the last extrapolate on it.
func (tm *TempoMap) segmentAtSec(sec float64) segment {
	i := sort.Search(len(tm.segments), func(i int) bool {
		return tm.segments[i].startSec > sec
	})
	if i == 0 {
		return tm.segments[0]
	}
	return tm.segments[i-1]
}

// segmentAtBeats locates the segment containing a cumulative beat position.
func (tm *TempoMap) segmentAtBeats(beats float64) segment {
	i := sort.Search(len(tm.segments), func(i int) bool {
		return tm.segments[i].startBeats > beats
	})
	if i == 0 {
		return tm.segments[0]
	}
	return tm.segments[i-1]
}

// SecondsToBeats converts timeline seconds to cumulative beats.
func (tm *TempoMap) SecondsToBeats(sec float64) float64 {
	s := tm.segmentAtSec(sec)
	return s.startBeats + (sec-s.startSec)*s.bpm/60.0
}

// BeatsToSeconds converts cumulative beats to timeline seconds.
func (tm *TempoMap) BeatsToSeconds(beats float64) float64 {
	s := tm.segmentAtBeats(beats)
	return s.startSec + (beats-s.startBeats)*60.0/s.bpm
}

// TicksToSeconds converts a canonical tick to timeline seconds.
func (tm *TempoMap) TicksToSeconds(tick int64) float64 {
	return tm.BeatsToSeconds(float64(tick) / float64(tm.ppq))
}

// SecondsToTicks converts timeline seconds to the nearest canonical tick.
func (tm *TempoMap) SecondsToTicks(sec float64) int64 {
	beats := tm.SecondsToBeats(sec)
	ticks := beats * float64(tm.ppq)
	if ticks >= 0 {
		return int64(ticks + 0.5)
	}
	return int64(ticks - 0.5)
}

// BPMAtSeconds returns the tempo in effect at a point on the timeline.
func (tm *TempoMap) BPMAtSeconds(sec float64) float64 {
	return tm.segmentAtSec(sec).bpm
}

// SecondsPerBeatAtTick returns the beat duration at a tick position. The
// playback clock uses this so integration stays tempo-aware rather than
// assuming a global average.
func (tm *TempoMap) SecondsPerBeatAtTick(tick int64) float64 {
	return 60.0 / tm.BPMAtSeconds(tm.TicksToSeconds(tick))
}
