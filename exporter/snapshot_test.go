package exporter_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Maokus/MVMNT-sub000/exporter"
	"github.com/Maokus/MVMNT-sub000/midi"
	"github.com/Maokus/MVMNT-sub000/schedule"
	"github.com/Maokus/MVMNT-sub000/timing"
	"github.com/Maokus/MVMNT-sub000/transport"
)

func testMap(t *testing.T) *timing.TempoMap {
	t.Helper()
	return timing.MustTempoMap([]timing.TempoEntry{{TimeSec: 0, BPM: 120}}, 480)
}

func TestSnapshot_FrameIndexToTick(t *testing.T) {
	snap := exporter.NewSnapshot(testMap(t), 1.0)

	// 30 fps at 120 bpm: frame 60 is 2.0s, 4 beats, 1920 ticks.
	require.EqualValues(t, 1920, snap.FrameIndexToTick(60, 30))
	require.EqualValues(t, 0, snap.FrameIndexToTick(0, 30))
	require.EqualValues(t, 0, snap.FrameIndexToTick(60, 0))
}

func TestSnapshot_Deterministic(t *testing.T) {
	snap := exporter.NewSnapshot(testMap(t), 1.0)
	for i := 0; i < 100; i++ {
		require.Equal(t, snap.FrameIndexToTick(5, 30), snap.FrameIndexToTick(5, 30))
	}
}

func TestSnapshot_RateScalesTimeline(t *testing.T) {
	snap := exporter.NewSnapshot(testMap(t), 2.0)

	// Double rate: frame 30 (1s of video) covers 2s of timeline.
	require.EqualValues(t, 1920, snap.FrameIndexToTick(30, 30))
	require.InDelta(t, 2.0, snap.Rate(), 1e-9)
}

func TestSnapshot_IsolatedFromLiveEdits(t *testing.T) {
	ctl := transport.NewController(testMap(t), 4)
	snap := exporter.NewSnapshot(ctl.TempoMap(), ctl.Rate())

	_, err := ctl.SetTempoMap([]timing.TempoEntry{{TimeSec: 0, BPM: 60}})
	require.NoError(t, err)

	// The live map moved, the snapshot did not.
	require.InDelta(t, 2.0, ctl.TempoMap().TicksToSeconds(960), 1e-9)
	require.InDelta(t, 1.0, snap.TickToSeconds(960), 1e-9)
	require.EqualValues(t, 1920, snap.FrameIndexToTick(60, 30))
}

func TestSnapshot_NilMapFallback(t *testing.T) {
	snap := exporter.NewSnapshot(nil, 0)
	require.Equal(t, timing.DefaultPPQ, snap.PPQ())
	require.InDelta(t, 1.0, snap.Rate(), 1e-9)
	require.InDelta(t, 0.5, snap.TickToSeconds(480), 1e-9)
}

func TestWriteSMF_RoundTrip(t *testing.T) {
	snap := exporter.NewSnapshot(testMap(t), 1.0)
	entries := []schedule.BatchEntry{
		{Tick: 0, DurationTicks: 480, TrackID: "a", EventID: "a-1", Note: midi.Note{Key: 60, Velocity: 100}},
		{Tick: 960, DurationTicks: 240, TrackID: "a", EventID: "a-2", Note: midi.Note{Key: 64, Velocity: 90}},
	}

	var buf bytes.Buffer
	require.NoError(t, exporter.WriteSMF(&buf, entries, snap))

	im, err := midi.ImportSMF(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 480, im.PPQ)
	require.Len(t, im.Tracks, 1)

	events := im.Tracks[0].Events
	require.Len(t, events, 2)
	require.EqualValues(t, 0, events[0].StartTick)
	require.EqualValues(t, 480, events[0].DurationTicks)
	require.EqualValues(t, uint8(60), events[0].Note.Key)
	require.EqualValues(t, 960, events[1].StartTick)
	require.EqualValues(t, 240, events[1].DurationTicks)
	require.EqualValues(t, uint8(64), events[1].Note.Key)

	// The baked tempo matches the snapshot.
	require.Len(t, im.Tempo, 1)
	require.InDelta(t, 0, im.Tempo[0].TimeSec, 1e-9)
	require.InDelta(t, 120, im.Tempo[0].BPM, 0.01)
}

func TestWriteSMF_NilSnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, exporter.WriteSMF(&buf, nil, nil))
}

func TestWriteSMF_ZeroDurationGetsMinimalOff(t *testing.T) {
	snap := exporter.NewSnapshot(testMap(t), 1.0)
	entries := []schedule.BatchEntry{
		{Tick: 100, DurationTicks: 0, TrackID: "a", EventID: "a-1", Note: midi.Note{Key: 60, Velocity: 100}},
	}

	var buf bytes.Buffer
	require.NoError(t, exporter.WriteSMF(&buf, entries, snap))

	im, err := midi.ImportSMF(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, im.Tracks, 1)
	require.EqualValues(t, 1, im.Tracks[0].Events[0].DurationTicks)
}
