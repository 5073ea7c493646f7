package midi_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/Maokus/MVMNT-sub000/midi"
	"github.com/Maokus/MVMNT-sub000/timing"
)

func tempoMeta(bpm float64) smf.Message {
	micros := uint32(60000000.0 / bpm)
	return smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(micros >> 16), byte(micros >> 8), byte(micros),
	})
}

func nameMeta(name string) smf.Message {
	msg := []byte{0xFF, 0x03, byte(len(name))}
	return smf.Message(append(msg, name...))
}

func writeTestSMF(t *testing.T, build func(track *smf.Track)) *bytes.Buffer {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var track smf.Track
	build(&track)
	track.Close(0)
	require.NoError(t, s.Add(track))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

func TestImportSMF_NotesAndTempo(t *testing.T) {
	buf := writeTestSMF(t, func(track *smf.Track) {
		track.Add(0, nameMeta("lead"))
		track.Add(0, tempoMeta(100))
		track.Add(0, smf.Message(gomidi.NoteOn(0, 60, 100)))
		track.Add(480, smf.Message(gomidi.NoteOff(0, 60)))
		track.Add(480, smf.Message(gomidi.NoteOn(0, 62, 90)))
		track.Add(240, smf.Message(gomidi.NoteOff(0, 62)))
	})

	im, err := midi.ImportSMF(buf)
	require.NoError(t, err)

	require.Equal(t, 480, im.PPQ)
	require.Len(t, im.Tracks, 1)
	require.Equal(t, "lead", im.Tracks[0].Name)

	events := im.Tracks[0].Events
	require.Len(t, events, 2)

	require.EqualValues(t, 0, events[0].StartTick)
	require.EqualValues(t, 480, events[0].DurationTicks)
	require.EqualValues(t, uint8(60), events[0].Note.Key)
	require.EqualValues(t, uint8(100), events[0].Note.Velocity)

	require.EqualValues(t, 960, events[1].StartTick)
	require.EqualValues(t, 240, events[1].DurationTicks)
	require.EqualValues(t, uint8(62), events[1].Note.Key)

	require.Len(t, im.Tempo, 1)
	require.InDelta(t, 0, im.Tempo[0].TimeSec, 1e-9)
	require.InDelta(t, 100, im.Tempo[0].BPM, 0.01)

	require.EqualValues(t, 1200, im.EndTick())
}

func TestImportSMF_NoteOnVelocityZeroIsOff(t *testing.T) {
	buf := writeTestSMF(t, func(track *smf.Track) {
		track.Add(0, smf.Message(gomidi.NoteOn(0, 60, 100)))
		track.Add(480, smf.Message([]byte{0x90, 60, 0})) // on with vel 0
	})

	im, err := midi.ImportSMF(buf)
	require.NoError(t, err)
	require.Len(t, im.Tracks, 1)
	require.Len(t, im.Tracks[0].Events, 1)
	require.EqualValues(t, 480, im.Tracks[0].Events[0].DurationTicks)
}

func TestImportSMF_DanglingOffIgnored(t *testing.T) {
	buf := writeTestSMF(t, func(track *smf.Track) {
		track.Add(0, smf.Message(gomidi.NoteOff(0, 60)))
		track.Add(0, smf.Message(gomidi.NoteOn(0, 64, 80)))
		track.Add(120, smf.Message(gomidi.NoteOff(0, 64)))
	})

	im, err := midi.ImportSMF(buf)
	require.NoError(t, err)
	require.Len(t, im.Tracks, 1)
	require.Len(t, im.Tracks[0].Events, 1)
	require.EqualValues(t, uint8(64), im.Tracks[0].Events[0].Note.Key)
}

func TestImportSMF_MidStreamTempoChange(t *testing.T) {
	buf := writeTestSMF(t, func(track *smf.Track) {
		track.Add(0, tempoMeta(120))
		track.Add(0, smf.Message(gomidi.NoteOn(0, 60, 100)))
		// 960 ticks at 120 bpm is 1.0s; the change lands there.
		track.Add(960, tempoMeta(60))
		track.Add(0, smf.Message(gomidi.NoteOff(0, 60)))
	})

	im, err := midi.ImportSMF(buf)
	require.NoError(t, err)

	require.Len(t, im.Tempo, 2)
	require.InDelta(t, 0, im.Tempo[0].TimeSec, 1e-9)
	require.InDelta(t, 120, im.Tempo[0].BPM, 0.01)
	require.InDelta(t, 1.0, im.Tempo[1].TimeSec, 1e-9)
	require.InDelta(t, 60, im.Tempo[1].BPM, 0.01)
}

func TestImportSMF_LateFirstTempoKeepsLeadInTiming(t *testing.T) {
	// First tempo meta lands mid file. The lead-in must keep the default
	// bpm rather than inherit the later tempo backwards.
	buf := writeTestSMF(t, func(track *smf.Track) {
		track.Add(0, smf.Message(gomidi.NoteOn(0, 60, 100)))
		track.Add(960, tempoMeta(60))
		track.Add(480, smf.Message(gomidi.NoteOff(0, 60)))
	})

	im, err := midi.ImportSMF(buf)
	require.NoError(t, err)

	require.Len(t, im.Tempo, 2)
	require.InDelta(t, 0, im.Tempo[0].TimeSec, 1e-9)
	require.InDelta(t, 120, im.Tempo[0].BPM, 1e-9)
	require.InDelta(t, 1.0, im.Tempo[1].TimeSec, 1e-9)
	require.InDelta(t, 60, im.Tempo[1].BPM, 0.01)

	tm, err := timing.NewTempoMap(im.Tempo, im.PPQ)
	require.NoError(t, err)
	require.InDelta(t, 0.0, tm.TicksToSeconds(0), 1e-9)
	require.InDelta(t, 1.0, tm.TicksToSeconds(960), 1e-9)
	// 480 ticks past the change at 60 bpm add a full second.
	require.InDelta(t, 2.0, tm.TicksToSeconds(1440), 1e-9)
}

func TestImportSMF_CoincidingTemposLastWins(t *testing.T) {
	buf := writeTestSMF(t, func(track *smf.Track) {
		track.Add(0, tempoMeta(120))
		track.Add(0, tempoMeta(90))
		track.Add(0, smf.Message(gomidi.NoteOn(0, 60, 100)))
		track.Add(120, smf.Message(gomidi.NoteOff(0, 60)))
	})

	im, err := midi.ImportSMF(buf)
	require.NoError(t, err)
	require.Len(t, im.Tempo, 1)
	require.InDelta(t, 90, im.Tempo[0].BPM, 0.01)
}

func TestImportSMF_EmptyTracksDropped(t *testing.T) {
	buf := writeTestSMF(t, func(track *smf.Track) {
		track.Add(0, tempoMeta(120))
	})

	im, err := midi.ImportSMF(buf)
	require.NoError(t, err)
	require.Empty(t, im.Tracks)
	require.EqualValues(t, 0, im.EndTick())
}

func TestImportSMF_Garbage(t *testing.T) {
	_, err := midi.ImportSMF(bytes.NewReader([]byte("not a midi file")))
	require.Error(t, err)
}
