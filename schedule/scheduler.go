package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Maokus/MVMNT-sub000/debug"
	"github.com/Maokus/MVMNT-sub000/midi"
	"github.com/Maokus/MVMNT-sub000/timing"
	"github.com/Maokus/MVMNT-sub000/transport"
)

// BatchEntry is one compiled event: absolute tick and derived seconds, with
// enough identity to route it.
type BatchEntry struct {
	Tick          int64     `json:"tick"`
	Seconds       float64   `json:"seconds"`
	DurationTicks int64     `json:"durationTicks"`
	TrackID       string    `json:"trackId"`
	EventID       string    `json:"eventId"`
	Note          midi.Note `json:"note"`
}

// Batch is the compiled look-ahead window. Entries are sorted by tick.
// Epoch is the scheduling generation the batch was compiled under; the
// consumer drops batches whose epoch is stale.
type Batch struct {
	ID       string
	Epoch    uint64
	FromTick int64
	ToTick   int64
	Entries  []BatchEntry
	Warnings []transport.Warning
}

// Request asks the worker for one compiled window.
type Request struct {
	ID             string
	Epoch          uint64
	NowTick        int64
	LookaheadTicks int64
}

// cached is the compiled segment for one track, reusable while the track is
// clean and the window unchanged.
type cached struct {
	from, to int64
	entries  []BatchEntry
}

// Scheduler owns the track set and compiles look-ahead windows, either
// synchronously via CompileWindow or through the Run worker and its
// request/batch channels.
type Scheduler struct {
	mu          sync.RWMutex
	tmap        *timing.TempoMap
	ppq         int
	fallbackBPM float64

	order  []string
	tracks map[string]*Track
	dirty  map[string]bool
	cache  map[string]cached

	requests chan Request
	batches  chan Batch
}

// NewScheduler creates a scheduler over a tempo map. A nil map degrades to
// fallback-bpm conversions with a warning on every batch.
func NewScheduler(tm *timing.TempoMap) *Scheduler {
	ppq := timing.DefaultPPQ
	if tm != nil {
		ppq = tm.PPQ()
	}
	return &Scheduler{
		tmap:        tm,
		ppq:         ppq,
		fallbackBPM: timing.DefaultBPM,
		tracks:      make(map[string]*Track),
		dirty:       make(map[string]bool),
		cache:       make(map[string]cached),
		requests:    make(chan Request, 16),
		batches:     make(chan Batch, 16),
	}
}

// AddTrack registers a track. Events are sorted on entry; an invalid region
// is dropped with a warning rather than rejecting the track.
func (s *Scheduler) AddTrack(t *Track) ([]transport.Warning, error) {
	if t == nil || t.ID == "" {
		return nil, fmt.Errorf("%w: missing track id", ErrInvalidTrack)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tracks[t.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate track id %q", ErrInvalidTrack, t.ID)
	}

	warns := validateRegion(t)
	t.sortEvents()
	s.tracks[t.ID] = t
	s.order = append(s.order, t.ID)
	s.dirty[t.ID] = true
	return warns, nil
}

// validateRegion clears an empty or inverted region. Callers hold s.mu.
func validateRegion(t *Track) []transport.Warning {
	if t.RegionStartTick != nil && t.RegionEndTick != nil && *t.RegionEndTick <= *t.RegionStartTick {
		t.RegionStartTick, t.RegionEndTick = nil, nil
		return []transport.Warning{{
			Code:    transport.WarnLoopDisabled,
			Message: fmt.Sprintf("track %q region is empty, region cleared", t.ID),
		}}
	}
	return nil
}

// Tracks returns the tracks in registration order. The slice is fresh but
// the pointers are live; mutate through the Set* methods only.
func (s *Scheduler) Tracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Track, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tracks[id])
	}
	return out
}

// SetTempoMap swaps the tempo map and dirties every track, since all cached
// seconds annotations are now wrong.
func (s *Scheduler) SetTempoMap(tm *timing.TempoMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tmap = tm
	if tm != nil {
		s.ppq = tm.PPQ()
	}
	for id := range s.tracks {
		s.dirty[id] = true
	}
}

// SetOffset moves a track on the global timeline.
func (s *Scheduler) SetOffset(id string, ticks int64) error {
	return s.mutate(id, func(t *Track) { t.OffsetTicks = ticks })
}

// SetRegion sets or clears (nil, nil) the playable region of a track.
func (s *Scheduler) SetRegion(id string, start, end *int64) ([]transport.Warning, error) {
	var warns []transport.Warning
	err := s.mutate(id, func(t *Track) {
		t.RegionStartTick, t.RegionEndTick = start, end
		warns = validateRegion(t)
	})
	return warns, err
}

// SetMute flags a track muted.
func (s *Scheduler) SetMute(id string, mute bool) error {
	return s.mutate(id, func(t *Track) { t.Mute = mute })
}

// SetSolo flags a track soloed. Solo state affects the audibility of every
// track, so all tracks are dirtied.
func (s *Scheduler) SetSolo(id string, solo bool) error {
	err := s.mutate(id, func(t *Track) { t.Solo = solo })
	if err == nil {
		s.mu.Lock()
		for tid := range s.tracks {
			s.dirty[tid] = true
		}
		s.mu.Unlock()
	}
	return err
}

// SetEnabled switches a track on or off.
func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	return s.mutate(id, func(t *Track) { t.Enabled = enabled })
}

func (s *Scheduler) mutate(id string, f func(*Track)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTrack, id)
	}
	f(t)
	s.dirty[id] = true
	return nil
}

// CompileWindow compiles [nowTick, nowTick+lookaheadTicks) into a batch.
// Clean tracks with an unchanged window reuse their cached segment.
func (s *Scheduler) CompileWindow(nowTick, lookaheadTicks int64, epoch uint64) Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to := nowTick, nowTick+lookaheadTicks
	batch := Batch{
		ID:       uuid.NewString(),
		Epoch:    epoch,
		FromTick: from,
		ToTick:   to,
	}

	if s.tmap == nil {
		batch.Warnings = append(batch.Warnings, transport.Warning{
			Code:    transport.WarnDegradedPrecision,
			Message: fmt.Sprintf("no tempo map, using global %.1f bpm", s.fallbackBPM),
		})
	}

	anySolo := false
	for _, t := range s.tracks {
		if t.Enabled && t.Solo {
			anySolo = true
			break
		}
	}

	for _, id := range s.order {
		t := s.tracks[id]
		if !t.audible(anySolo) {
			continue
		}

		if c, ok := s.cache[id]; ok && !s.dirty[id] && c.from == from && c.to == to {
			batch.Entries = append(batch.Entries, c.entries...)
			continue
		}

		entries := s.compileTrack(t, from, to)
		s.cache[id] = cached{from: from, to: to, entries: entries}
		s.dirty[id] = false
		batch.Entries = append(batch.Entries, entries...)
	}

	sort.Slice(batch.Entries, func(i, j int) bool {
		a, b := batch.Entries[i], batch.Entries[j]
		if a.Tick != b.Tick {
			return a.Tick < b.Tick
		}
		return a.TrackID < b.TrackID
	})
	return batch
}

// compileTrack selects the track's events inside the global window and
// annotates them with absolute tick and derived seconds. Callers hold s.mu.
func (s *Scheduler) compileTrack(t *Track, from, to int64) []BatchEntry {
	// Map the global window into track-local ticks.
	lo := from - t.OffsetTicks
	hi := to - t.OffsetTicks
	if t.RegionStartTick != nil && *t.RegionStartTick > lo {
		lo = *t.RegionStartTick
	}
	if t.RegionEndTick != nil && *t.RegionEndTick < hi {
		hi = *t.RegionEndTick
	}
	if lo >= hi {
		return nil
	}

	start := sort.Search(len(t.Events), func(i int) bool {
		return t.Events[i].StartTick >= lo
	})

	var entries []BatchEntry
	for i := start; i < len(t.Events) && t.Events[i].StartTick < hi; i++ {
		e := t.Events[i]
		abs := e.StartTick + t.OffsetTicks
		entries = append(entries, BatchEntry{
			Tick:          abs,
			Seconds:       s.secondsAt(abs),
			DurationTicks: e.DurationTicks,
			TrackID:       t.ID,
			EventID:       e.ID,
			Note:          e.Note,
		})
	}
	return entries
}

func (s *Scheduler) secondsAt(tick int64) float64 {
	if s.tmap != nil {
		return s.tmap.TicksToSeconds(tick)
	}
	return float64(tick) / float64(s.ppq) * 60.0 / s.fallbackBPM
}

// Submit queues a compile request for the worker. A full queue drops the
// request; the next frame will ask again with a fresher position.
func (s *Scheduler) Submit(req Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	select {
	case s.requests <- req:
	default:
		debug.LogEvery(60, "schedule", "request queue full, dropped")
	}
}

// Batches is the worker's output channel. Consumers must drop any batch
// whose Epoch is stale; Accept does that check.
func (s *Scheduler) Batches() <-chan Batch { return s.batches }

// Accept reports whether a batch is current. Stale batches are discarded on
// arrival, never applied.
func Accept(b Batch, currentEpoch uint64) bool {
	return b.Epoch == currentEpoch
}

// Run is the worker loop: FIFO over requests, one batch per request.
// Blocking on a full batch channel would stall compilation, so a batch the
// consumer has no room for is dropped.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			batch := s.CompileWindow(req.NowTick, req.LookaheadTicks, req.Epoch)
			select {
			case s.batches <- batch:
			default:
				debug.LogEvery(60, "schedule", "batch channel full, dropped epoch=%d", batch.Epoch)
			}
		}
	}
}
