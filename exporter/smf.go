package exporter

import (
	"fmt"
	"io"
	"os"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/Maokus/MVMNT-sub000/schedule"
)

// timedMessage is an absolute-tick message awaiting delta encoding.
type timedMessage struct {
	tick int64
	msg  smf.Message
	ord  int // stable order for messages on the same tick
}

// WriteSMF renders compiled batch entries as a single-track Standard MIDI
// File under the snapshot's frozen timing. Tempo changes from the snapshot
// are baked in so the file plays back at the same wall-clock positions the
// snapshot reports.
func WriteSMF(w io.Writer, entries []schedule.BatchEntry, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(uint16(snap.PPQ()))

	var msgs []timedMessage

	for _, e := range snap.Entries() {
		microsPerBeat := uint32(60000000.0 / e.BPM)
		msgs = append(msgs, timedMessage{
			tick: snapTick(snap, e.TimeSec),
			ord:  0,
			msg: smf.Message([]byte{
				0xFF, 0x51, 0x03,
				byte(microsPerBeat >> 16),
				byte(microsPerBeat >> 8),
				byte(microsPerBeat),
			}),
		})
	}

	for _, e := range entries {
		msgs = append(msgs, timedMessage{
			tick: e.Tick,
			ord:  2,
			msg:  smf.Message(gomidi.NoteOn(e.Note.Channel, e.Note.Key, e.Note.Velocity)),
		})
		off := e.Tick + e.DurationTicks
		if off <= e.Tick {
			off = e.Tick + 1
		}
		msgs = append(msgs, timedMessage{
			tick: off,
			ord:  1, // note-offs before note-ons on the same tick
			msg:  smf.Message(gomidi.NoteOff(e.Note.Channel, e.Note.Key)),
		})
	}

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].tick != msgs[j].tick {
			return msgs[i].tick < msgs[j].tick
		}
		return msgs[i].ord < msgs[j].ord
	})

	var track smf.Track
	var cursor int64
	for _, m := range msgs {
		tick := m.tick
		if tick < cursor {
			tick = cursor
		}
		track.Add(uint32(tick-cursor), m.msg)
		cursor = tick
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	return nil
}

// WriteSMFFile is WriteSMF to a file path.
func WriteSMFFile(filename string, entries []schedule.BatchEntry, snap *Snapshot) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	defer f.Close()
	return WriteSMF(f, entries, snap)
}

// snapTick places a tempo entry's time on the tick grid. Conversions use the
// snapshot's own map, so entries land exactly where they took effect.
func snapTick(snap *Snapshot, sec float64) int64 {
	t := snap.tmap.SecondsToTicks(sec)
	if t < 0 {
		return 0
	}
	return t
}
