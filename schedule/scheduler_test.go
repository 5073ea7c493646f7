package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Maokus/MVMNT-sub000/midi"
	"github.com/Maokus/MVMNT-sub000/schedule"
	"github.com/Maokus/MVMNT-sub000/timing"
	"github.com/Maokus/MVMNT-sub000/transport"
)

func testMap(t *testing.T) *timing.TempoMap {
	t.Helper()
	return timing.MustTempoMap([]timing.TempoEntry{{TimeSec: 0, BPM: 120}}, 480)
}

func beatTrack(id string, ticks ...int64) *schedule.Track {
	t := &schedule.Track{ID: id, Name: id, Enabled: true}
	for i, tick := range ticks {
		t.Events = append(t.Events, schedule.Event{
			ID:            id + "-" + string(rune('a'+i)),
			StartTick:     tick,
			DurationTicks: 240,
			Note:          midi.Note{Key: 60, Velocity: 100},
		})
	}
	return t
}

func trackIDs(b schedule.Batch) map[string]int {
	out := map[string]int{}
	for _, e := range b.Entries {
		out[e.TrackID]++
	}
	return out
}

func TestScheduler_AddTrackValidation(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))

	_, err := s.AddTrack(nil)
	require.ErrorIs(t, err, schedule.ErrInvalidTrack)

	_, err = s.AddTrack(&schedule.Track{})
	require.ErrorIs(t, err, schedule.ErrInvalidTrack)

	_, err = s.AddTrack(beatTrack("a", 0))
	require.NoError(t, err)
	_, err = s.AddTrack(beatTrack("a", 0))
	require.ErrorIs(t, err, schedule.ErrInvalidTrack)
}

func TestScheduler_UnknownTrackMutations(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	require.ErrorIs(t, s.SetOffset("nope", 0), schedule.ErrUnknownTrack)
	require.ErrorIs(t, s.SetMute("nope", true), schedule.ErrUnknownTrack)
	require.ErrorIs(t, s.SetSolo("nope", true), schedule.ErrUnknownTrack)
	require.ErrorIs(t, s.SetEnabled("nope", false), schedule.ErrUnknownTrack)
}

func TestScheduler_WindowSelection(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 0, 480, 960, 1440))
	require.NoError(t, err)

	b := s.CompileWindow(480, 960, 0)
	require.Len(t, b.Entries, 2)
	require.EqualValues(t, 480, b.Entries[0].Tick)
	require.EqualValues(t, 960, b.Entries[1].Tick)

	// Window end is exclusive: an event at exactly now+lookahead waits for
	// the next window.
	b = s.CompileWindow(0, 1440, 0)
	require.Len(t, b.Entries, 3)
}

func TestScheduler_SecondsAnnotation(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 960))
	require.NoError(t, err)

	b := s.CompileWindow(0, 1920, 0)
	require.Len(t, b.Entries, 1)
	require.InDelta(t, 1.0, b.Entries[0].Seconds, 1e-9)
}

func TestScheduler_SoloDominance(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 0, 480))
	require.NoError(t, err)
	_, err = s.AddTrack(beatTrack("b", 0, 480))
	require.NoError(t, err)

	require.NoError(t, s.SetSolo("b", true))
	got := trackIDs(s.CompileWindow(0, 1920, 0))
	require.Equal(t, map[string]int{"b": 2}, got)

	// Solo beats mute: a muted soloed track still sounds.
	require.NoError(t, s.SetMute("b", true))
	got = trackIDs(s.CompileWindow(0, 1920, 0))
	require.Equal(t, map[string]int{"b": 2}, got)

	require.NoError(t, s.SetSolo("b", false))
	got = trackIDs(s.CompileWindow(0, 1920, 0))
	require.Equal(t, map[string]int{"a": 2}, got)
}

func TestScheduler_MuteAndEnable(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 0))
	require.NoError(t, err)
	_, err = s.AddTrack(beatTrack("b", 0))
	require.NoError(t, err)

	require.NoError(t, s.SetMute("a", true))
	require.Equal(t, map[string]int{"b": 1}, trackIDs(s.CompileWindow(0, 480, 0)))

	require.NoError(t, s.SetEnabled("b", false))
	require.Empty(t, s.CompileWindow(0, 480, 0).Entries)
}

func TestScheduler_OffsetShiftsWindowMembership(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 0))
	require.NoError(t, err)
	require.NoError(t, s.SetOffset("a", 960))

	require.Empty(t, s.CompileWindow(0, 960, 0).Entries)

	b := s.CompileWindow(960, 960, 0)
	require.Len(t, b.Entries, 1)
	require.EqualValues(t, 960, b.Entries[0].Tick)
	require.InDelta(t, 1.0, b.Entries[0].Seconds, 1e-9)
}

func TestScheduler_RegionClipsEvents(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 0, 480, 960))
	require.NoError(t, err)

	lo, hi := int64(480), int64(960)
	warns, err := s.SetRegion("a", &lo, &hi)
	require.NoError(t, err)
	require.Empty(t, warns)

	b := s.CompileWindow(0, 1920, 0)
	require.Len(t, b.Entries, 1)
	require.EqualValues(t, 480, b.Entries[0].Tick)
}

func TestScheduler_InvertedRegionCleared(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	lo, hi := int64(960), int64(480)
	tr := beatTrack("a", 0, 480, 960)
	tr.RegionStartTick, tr.RegionEndTick = &lo, &hi

	warns, err := s.AddTrack(tr)
	require.NoError(t, err)
	require.Len(t, warns, 1)
	require.Nil(t, tr.RegionStartTick)
	require.Nil(t, tr.RegionEndTick)

	// With the region cleared, all events are back.
	require.Len(t, s.CompileWindow(0, 1920, 0).Entries, 3)
}

func TestScheduler_CacheReuseAndDirtying(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 0, 480))
	require.NoError(t, err)

	first := s.CompileWindow(0, 960, 0)
	again := s.CompileWindow(0, 960, 0)
	require.Equal(t, first.Entries, again.Entries)

	// A mutation must invalidate the cached segment.
	require.NoError(t, s.SetOffset("a", 240))
	moved := s.CompileWindow(0, 960, 0)
	require.Len(t, moved.Entries, 2)
	require.EqualValues(t, 240, moved.Entries[0].Tick)
	require.EqualValues(t, 720, moved.Entries[1].Tick)
}

func TestScheduler_TempoSwapRecomputesSeconds(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 960))
	require.NoError(t, err)

	b := s.CompileWindow(0, 1920, 0)
	require.InDelta(t, 1.0, b.Entries[0].Seconds, 1e-9)

	s.SetTempoMap(timing.MustTempoMap([]timing.TempoEntry{{TimeSec: 0, BPM: 60}}, 480))
	b = s.CompileWindow(0, 1920, 0)
	require.EqualValues(t, 960, b.Entries[0].Tick)
	require.InDelta(t, 2.0, b.Entries[0].Seconds, 1e-9)
}

func TestScheduler_NilTempoMapDegrades(t *testing.T) {
	s := schedule.NewScheduler(nil)
	_, err := s.AddTrack(beatTrack("a", 480))
	require.NoError(t, err)

	b := s.CompileWindow(0, 960, 0)
	require.Len(t, b.Warnings, 1)
	require.Equal(t, transport.WarnDegradedPrecision, b.Warnings[0].Code)

	// Fallback 120 bpm: one beat is half a second.
	require.Len(t, b.Entries, 1)
	require.InDelta(t, 0.5, b.Entries[0].Seconds, 1e-9)
}

func TestScheduler_BatchSortedAcrossTracks(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("b", 480, 1440))
	require.NoError(t, err)
	_, err = s.AddTrack(beatTrack("a", 0, 960))
	require.NoError(t, err)

	b := s.CompileWindow(0, 1920, 0)
	require.Len(t, b.Entries, 4)
	for i := 1; i < len(b.Entries); i++ {
		require.LessOrEqual(t, b.Entries[i-1].Tick, b.Entries[i].Tick)
	}
}

func TestScheduler_WorkerAndEpochStaleness(t *testing.T) {
	s := schedule.NewScheduler(testMap(t))
	_, err := s.AddTrack(beatTrack("a", 0, 480))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Submit(schedule.Request{Epoch: 3, NowTick: 0, LookaheadTicks: 960})

	select {
	case b := <-s.Batches():
		require.Equal(t, uint64(3), b.Epoch)
		require.Len(t, b.Entries, 2)
		require.True(t, schedule.Accept(b, 3))
		require.False(t, schedule.Accept(b, 4))
	case <-time.After(2 * time.Second):
		t.Fatal("no batch from worker")
	}
}

func TestTrack_EndTick(t *testing.T) {
	tr := beatTrack("a", 0, 960)
	require.EqualValues(t, 1200, tr.EndTick())

	tr.OffsetTicks = 480
	require.EqualValues(t, 1680, tr.EndTick())
}
