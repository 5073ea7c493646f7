// Package schedule compiles look-ahead batches of musical events. A worker
// goroutine turns (position, window) requests into per-track event batches;
// every batch carries the epoch it was compiled under so stale results are
// dropped on arrival instead of applied.
package schedule

import (
	"sort"

	"github.com/Maokus/MVMNT-sub000/midi"
)

// Event is one schedulable note on a track-local tick timeline.
type Event struct {
	ID            string    `json:"id"`
	StartTick     int64     `json:"startTick"`
	DurationTicks int64     `json:"durationTicks"`
	Note          midi.Note `json:"note"`
}

// Track is a scheduled event container with placement and audibility state.
// Offset and region are in ticks; region bounds are track-local and optional.
type Track struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	OffsetTicks     int64  `json:"offsetTicks"`
	RegionStartTick *int64 `json:"regionStartTick,omitempty"`
	RegionEndTick   *int64 `json:"regionEndTick,omitempty"`
	Enabled         bool   `json:"enabled"`
	Mute            bool   `json:"mute"`
	Solo            bool   `json:"solo"`
	PortName        string `json:"portName,omitempty"`

	Events []Event `json:"events"`
}

// EndTick returns the global tick just past the track's last event.
func (t *Track) EndTick() int64 {
	var end int64
	for _, e := range t.Events {
		if fin := e.StartTick + e.DurationTicks; fin > end {
			end = fin
		}
	}
	return end + t.OffsetTicks
}

// sortEvents keeps events ordered by start tick so window selection can
// binary search.
func (t *Track) sortEvents() {
	sort.Slice(t.Events, func(i, j int) bool {
		return t.Events[i].StartTick < t.Events[j].StartTick
	})
}

// audible decides whether this track contributes events. Solo dominance: if
// any track is soloed, only soloed tracks sound, mute flags notwithstanding.
func (t *Track) audible(anySolo bool) bool {
	if !t.Enabled {
		return false
	}
	if anySolo {
		return t.Solo
	}
	return !t.Mute
}
