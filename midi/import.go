package midi

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/Maokus/MVMNT-sub000/debug"
	"github.com/Maokus/MVMNT-sub000/timing"
)

// Import is the normalized result of reading a Standard MIDI File: per-track
// note events in ticks, the tempo change list in timeline seconds, and the
// file's tick resolution.
type Import struct {
	PPQ    int
	Tempo  []timing.TempoEntry
	Tracks []TrackData
}

// EndTick returns the last event tick across all tracks.
func (im *Import) EndTick() int64 {
	var end int64
	for _, t := range im.Tracks {
		if e := t.EndTick(); e > end {
			end = e
		}
	}
	return end
}

// ImportFile reads and normalizes an SMF file.
func ImportFile(filename string) (*Import, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read midi file: %w", err)
	}
	return ImportSMF(bytes.NewReader(data))
}

// ImportSMF parses SMF data into normalized tick-domain tracks. Tempo meta
// events from all tracks are merged into one seconds-domain tempo list.
func ImportSMF(r io.Reader) (*Import, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("parse midi: %w", err)
	}

	ppq := timing.DefaultPPQ
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		ppq = int(mt.Resolution())
	}

	var tempos []tempoAt

	im := &Import{PPQ: ppq}

	for ti, track := range s.Tracks {
		var currentTick int64
		td := TrackData{Name: fmt.Sprintf("track %d", ti+1)}

		// Open notes per (channel, key); note-offs close the most recent.
		type openNote struct {
			tick int64
			vel  uint8
		}
		open := make(map[[2]uint8][]openNote)

		for _, ev := range track {
			currentTick += int64(ev.Delta)
			msg := ev.Message

			// Track name meta (FF 03 len ...)
			if len(msg) >= 3 && msg[0] == 0xFF && msg[1] == 0x03 {
				if name := string(msg[3:]); name != "" {
					td.Name = name
				}
			}

			// Tempo meta (FF 51 03 ...)
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				microsPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if microsPerBeat > 0 {
					tempos = append(tempos, tempoAt{
						tick: currentTick,
						bpm:  60000000.0 / float64(microsPerBeat),
					})
				}
			}

			if len(msg) < 3 {
				continue
			}
			status := msg[0]
			key := msg[1]
			vel := msg[2]
			ch := status & 0x0F

			// Note On (0x90-0x9F) with velocity > 0
			if status >= 0x90 && status <= 0x9F && vel > 0 {
				k := [2]uint8{ch, key}
				open[k] = append(open[k], openNote{tick: currentTick, vel: vel})
				continue
			}
			// Note Off (0x80-0x8F) or Note On with velocity 0
			if (status >= 0x80 && status <= 0x8F) || (status >= 0x90 && status <= 0x9F && vel == 0) {
				k := [2]uint8{ch, key}
				stack := open[k]
				if len(stack) == 0 {
					continue
				}
				on := stack[len(stack)-1]
				open[k] = stack[:len(stack)-1]
				dur := currentTick - on.tick
				if dur <= 0 {
					dur = 1
				}
				td.Events = append(td.Events, NoteEvent{
					StartTick:     on.tick,
					DurationTicks: dur,
					Note:          Note{Key: key, Velocity: on.vel, Channel: ch},
				})
			}
		}

		sort.Slice(td.Events, func(i, j int) bool {
			return td.Events[i].StartTick < td.Events[j].StartTick
		})
		if len(td.Events) > 0 {
			im.Tracks = append(im.Tracks, td)
		}
	}

	sort.Slice(tempos, func(i, j int) bool { return tempos[i].tick < tempos[j].tick })
	im.Tempo = temposToSeconds(tempos, ppq)

	debug.Log("import", "smf: ppq=%d tracks=%d tempos=%d end=%d",
		ppq, len(im.Tracks), len(im.Tempo), im.EndTick())
	return im, nil
}

// tempoAt is a tick-positioned tempo event as found in the file.
type tempoAt struct {
	tick int64
	bpm  float64
}

// temposToSeconds integrates tick-positioned tempo events into the
// seconds-domain entries the tempo map wants. Ticks before the first tempo
// event run at the default bpm.
func temposToSeconds(tempos []tempoAt, ppq int) []timing.TempoEntry {
	var out []timing.TempoEntry
	prevTick := int64(0)
	prevBPM := timing.DefaultBPM
	sec := 0.0

	// A first tempo event past tick 0 leaves a default-bpm region in front
	// of it. That region needs its own entry, or the map would extrapolate
	// the first real segment backwards over it.
	if len(tempos) > 0 && tempos[0].tick > 0 {
		out = append(out, timing.TempoEntry{TimeSec: 0, BPM: timing.DefaultBPM})
	}

	for _, t := range tempos {
		sec += float64(t.tick-prevTick) / float64(ppq) * 60.0 / prevBPM
		// Coinciding tempo events: last one wins, times must stay strictly
		// ascending.
		if n := len(out); n > 0 && out[n-1].TimeSec == sec {
			out[n-1].BPM = t.bpm
		} else {
			out = append(out, timing.TempoEntry{TimeSec: sec, BPM: t.bpm})
		}
		prevTick = t.tick
		prevBPM = t.bpm
	}
	return out
}
