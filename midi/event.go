// Package midi is the boundary to the MIDI world: normalized note events in
// ticks on the way in (SMF import), live note messages on the way out.
package midi

// Note is the payload carried by a scheduled event.
type Note struct {
	Key      uint8 `json:"key"`
	Velocity uint8 `json:"velocity"`
	Channel  uint8 `json:"channel"`
}

// NoteEvent is a note placed on a track-local tick timeline.
type NoteEvent struct {
	StartTick     int64 `json:"startTick"`
	DurationTicks int64 `json:"durationTicks"`
	Note          Note  `json:"note"`
}

// TrackData is one imported track: already-normalized events, ready for the
// scheduler. The core never sees file bytes.
type TrackData struct {
	Name   string      `json:"name"`
	Events []NoteEvent `json:"events"`
}

// EndTick returns the tick just past the last event, or 0 for an empty track.
func (t TrackData) EndTick() int64 {
	var end int64
	for _, e := range t.Events {
		if fin := e.StartTick + e.DurationTicks; fin > end {
			end = fin
		}
	}
	return end
}
