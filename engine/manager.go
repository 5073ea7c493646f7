// Package engine wires the transport, the scheduler worker and the MIDI
// output into one runtime. The frame loop is the single writer of canonical
// time; the scheduler runs in its own goroutine and talks back through
// epoch-tagged batches.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Maokus/MVMNT-sub000/debug"
	"github.com/Maokus/MVMNT-sub000/midi"
	"github.com/Maokus/MVMNT-sub000/schedule"
	"github.com/Maokus/MVMNT-sub000/timing"
	"github.com/Maokus/MVMNT-sub000/transport"
)

// frame cadences
const (
	frameInterval = 16 * time.Millisecond // transport update
	fillInterval  = 50 * time.Millisecond // scheduler refill
	uiFPS         = 30
)

// maxWarnings bounds the retained warning history.
const maxWarnings = 32

// Manager orchestrates playback. All transport mutations go through its
// methods so warnings are collected and the scheduler is nudged.
type Manager struct {
	ctl   *transport.Controller
	sched *schedule.Scheduler
	out   *midi.Output

	lookaheadTicks int64

	mu         sync.Mutex
	pending    []schedule.BatchEntry
	dispatched map[string]struct{}
	warnings   []transport.Warning
	lastWraps  uint64

	stopChan      chan struct{}
	stopOnce      sync.Once
	interruptChan chan struct{} // wake the dispatch loop after seek/pause/queue change
	cancelWorker  context.CancelFunc

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager builds an engine around a tempo map. out may be nil for a
// silent engine (tests, export-only runs).
func NewManager(tm *timing.TempoMap, beatsPerBar int, out *midi.Output) *Manager {
	ctl := transport.NewController(tm, beatsPerBar)
	return &Manager{
		ctl:            ctl,
		sched:          schedule.NewScheduler(tm),
		out:            out,
		lookaheadTicks: int64(tm.PPQ()), // one beat ahead
		dispatched:     make(map[string]struct{}),
		UpdateChan:     make(chan struct{}, 1),
	}
}

// Controller exposes the transport for read-side callers (TUI, HTTP API).
func (m *Manager) Controller() *transport.Controller { return m.ctl }

// Scheduler exposes the track set.
func (m *Manager) Scheduler() *schedule.Scheduler { return m.sched }

// StartRuntime starts the frame loop, the scheduler worker and the dispatch
// loop. Call once at startup.
func (m *Manager) StartRuntime() {
	m.stopChan = make(chan struct{})
	m.interruptChan = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelWorker = cancel

	go m.sched.Run(ctx)
	go m.frameLoop()
	go m.dispatchLoop()
}

// Stop tears the runtime down. Safe to call more than once; the loops keep
// reading the same closed channel, which stays observable forever.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.stopChan != nil {
			close(m.stopChan)
		}
		if m.cancelWorker != nil {
			m.cancelWorker()
		}
	})
}

// LoadImport registers imported tracks, replaces the tempo map with the
// file's, and sets the seek bound to the end of content.
func (m *Manager) LoadImport(im *midi.Import) ([]transport.Warning, error) {
	var all []transport.Warning

	if warns, err := m.ctl.SetTempoMap(im.Tempo); err != nil {
		return append(all, warns...), fmt.Errorf("load tempo: %w", err)
	}
	m.sched.SetTempoMap(m.ctl.TempoMap())

	for i, td := range im.Tracks {
		t := &schedule.Track{
			ID:      fmt.Sprintf("t%02d", i+1),
			Name:    td.Name,
			Enabled: true,
		}
		for _, e := range td.Events {
			t.Events = append(t.Events, schedule.Event{
				ID:            uuid.NewString(),
				StartTick:     e.StartTick,
				DurationTicks: e.DurationTicks,
				Note:          e.Note,
			})
		}
		warns, err := m.sched.AddTrack(t)
		all = append(all, warns...)
		if err != nil {
			return all, err
		}
	}

	m.ctl.SetContentMax(contentEnd(m.sched.Tracks()))
	m.recordWarnings(all)
	return all, nil
}

func contentEnd(tracks []*schedule.Track) int64 {
	var end int64
	for _, t := range tracks {
		if e := t.EndTick(); e > end {
			end = e
		}
	}
	return end
}

// Transport facade. Each mutation records warnings, invalidates pending
// dispatch where the position moved, and nudges the loops.

// Play starts playback from the current position.
func (m *Manager) Play() []transport.Warning {
	w := m.ctl.Play(nowMs())
	m.recordWarnings(w)
	m.interrupt()
	m.notifyUpdate()
	return w
}

// Pause freezes playback.
func (m *Manager) Pause() {
	m.ctl.Pause()
	m.interrupt()
	m.notifyUpdate()
}

// SeekTick moves the playhead; queued events for the old position are discarded.
func (m *Manager) SeekTick(tick int64) []transport.Warning {
	w := m.ctl.SeekTick(tick)
	m.recordWarnings(w)
	m.clearPending()
	m.interrupt()
	m.notifyUpdate()
	return w
}

// SetLoop configures the loop region.
func (m *Manager) SetLoop(start, end int64, enabled bool) []transport.Warning {
	w := m.ctl.SetLoop(start, end, enabled)
	m.recordWarnings(w)
	m.notifyUpdate()
	return w
}

// SetQuantize selects the play/loop snap grid.
func (m *Manager) SetQuantize(mode transport.QuantizeMode) {
	m.ctl.SetQuantize(mode)
	m.notifyUpdate()
}

// SetRate sets the playback rate multiplier.
func (m *Manager) SetRate(rate float64) error {
	err := m.ctl.SetRate(rate)
	m.notifyUpdate()
	return err
}

// SetTempoMap atomically replaces the tempo map everywhere. In-flight
// batches die with the epoch bump; pending dispatch is recompiled.
func (m *Manager) SetTempoMap(entries []timing.TempoEntry) ([]transport.Warning, error) {
	w, err := m.ctl.SetTempoMap(entries)
	m.recordWarnings(w)
	if err != nil {
		return w, err
	}
	m.sched.SetTempoMap(m.ctl.TempoMap())
	m.clearPending()
	m.interrupt()
	m.notifyUpdate()
	return w, nil
}

// Now returns the canonical position snapshot.
func (m *Manager) Now() transport.Snapshot { return m.ctl.Now() }

// Warnings returns the retained warning history, newest last.
func (m *Manager) Warnings() []transport.Warning {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transport.Warning, len(m.warnings))
	copy(out, m.warnings)
	return out
}

func (m *Manager) recordWarnings(w []transport.Warning) {
	if len(w) == 0 {
		return
	}
	m.mu.Lock()
	m.warnings = append(m.warnings, w...)
	if n := len(m.warnings); n > maxWarnings {
		m.warnings = m.warnings[n-maxWarnings:]
	}
	m.mu.Unlock()
	m.notifyUpdate()
}

func (m *Manager) clearPending() {
	m.mu.Lock()
	m.pending = nil
	m.dispatched = make(map[string]struct{})
	m.mu.Unlock()
}

// interrupt wakes the dispatch loop to recalculate its wait.
func (m *Manager) interrupt() {
	select {
	case m.interruptChan <- struct{}{}:
	default:
	}
}

// notifyUpdate pings the TUI.
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

// frameLoop is the single writer cadence: advance the transport, keep the
// scheduler fed, drop stale batches on arrival, ping the UI.
func (m *Manager) frameLoop() {
	frame := time.NewTicker(frameInterval)
	fill := time.NewTicker(fillInterval)
	ui := time.NewTicker(time.Second / uiFPS)
	defer frame.Stop()
	defer fill.Stop()
	defer ui.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-frame.C:
			m.ctl.Update(nowMs())
			m.checkWrap()
			m.drainBatches()
		case <-fill.C:
			snap := m.ctl.Now()
			m.sched.Submit(schedule.Request{
				Epoch:          m.ctl.Epoch(),
				NowTick:        snap.Tick,
				LookaheadTicks: m.lookaheadTicks,
			})
		case <-ui.C:
			m.notifyUpdate()
		}
	}
}

// checkWrap flushes dispatch identity after a loop wrap. Dedupe is keyed per
// (event, tick), so without the flush the region's events would count as
// already played and every pass after the first would be silent.
func (m *Manager) checkWrap() {
	if w := m.ctl.Wraps(); w != m.lastWraps {
		m.lastWraps = w
		m.clearPending()
		m.interrupt()
	}
}

// drainBatches merges freshly compiled batches into the pending queue,
// discarding any batch compiled under a stale epoch.
func (m *Manager) drainBatches() {
	for {
		select {
		case b := <-m.sched.Batches():
			if !schedule.Accept(b, m.ctl.Epoch()) {
				debug.Log("engine", "dropped stale batch epoch=%d current=%d", b.Epoch, m.ctl.Epoch())
				continue
			}
			m.recordWarnings(b.Warnings)
			m.mergeBatch(b)
		default:
			return
		}
	}
}

// mergeBatch appends entries not yet dispatched. Overlapping lookahead
// windows re-deliver the same events, so dispatch identity is tracked per
// (event, tick).
func (m *Manager) mergeBatch(b schedule.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range b.Entries {
		key := dispatchKey(e)
		if _, seen := m.dispatched[key]; seen {
			continue
		}
		m.dispatched[key] = struct{}{}
		m.pending = append(m.pending, e)
	}
	sort.Slice(m.pending, func(i, j int) bool {
		return m.pending[i].Tick < m.pending[j].Tick
	})
	if len(b.Entries) > 0 {
		m.interruptLocked()
	}
}

func (m *Manager) interruptLocked() {
	select {
	case m.interruptChan <- struct{}{}:
	default:
	}
}

func dispatchKey(e schedule.BatchEntry) string {
	return fmt.Sprintf("%s/%s@%d", e.TrackID, e.EventID, e.Tick)
}

// dispatchLoop waits until the earliest pending entry is due, then plays it.
// A seek, pause or new batch interrupts the wait and the timing recomputes.
func (m *Manager) dispatchLoop() {
	for {
		select {
		case <-m.stopChan:
			return
		default:
		}

		snap := m.ctl.Now()
		if snap.Status != transport.StatusPlaying {
			m.waitInterrupt(5 * time.Millisecond)
			continue
		}

		entry, ok := m.peekPending()
		if !ok {
			m.waitInterrupt(5 * time.Millisecond)
			continue
		}

		rate := m.ctl.Rate()
		waitSec := (entry.Seconds - snap.Seconds) / rate
		if waitSec > 0 {
			if !m.waitInterrupt(time.Duration(waitSec * float64(time.Second))) {
				return
			}
			// Interrupted or timer fired; re-evaluate from the top either way.
			if again, ok := m.peekPending(); !ok || again != entry {
				continue
			}
			if m.ctl.Now().Seconds < entry.Seconds {
				continue
			}
		}

		m.popPending()
		m.send(entry, rate)
	}
}

// waitInterrupt sleeps for d or until interrupted. Returns false on shutdown.
func (m *Manager) waitInterrupt(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.stopChan:
		return false
	case <-m.interruptChan:
		return true
	case <-timer.C:
		return true
	}
}

func (m *Manager) peekPending() (schedule.BatchEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return schedule.BatchEntry{}, false
	}
	return m.pending[0], true
}

func (m *Manager) popPending() {
	m.mu.Lock()
	if len(m.pending) > 0 {
		m.pending = m.pending[1:]
	}
	m.mu.Unlock()
}

// send plays one entry and schedules its note-off.
func (m *Manager) send(e schedule.BatchEntry, rate float64) {
	if m.out == nil {
		return
	}
	port := m.portFor(e.TrackID)
	m.out.NoteOn(port, e.Note)
	debug.LogEvery(32, "dispatch", "track=%s tick=%d key=%d", e.TrackID, e.Tick, e.Note.Key)

	durSec := m.durationSeconds(e) / rate
	go func(port string, n midi.Note) {
		time.Sleep(time.Duration(durSec * float64(time.Second)))
		m.out.NoteOff(port, n)
	}(port, e.Note)
}

func (m *Manager) durationSeconds(e schedule.BatchEntry) float64 {
	tm := m.ctl.TempoMap()
	return tm.TicksToSeconds(e.Tick+e.DurationTicks) - tm.TicksToSeconds(e.Tick)
}

func (m *Manager) portFor(trackID string) string {
	for _, t := range m.sched.Tracks() {
		if t.ID == trackID {
			return t.PortName
		}
	}
	return ""
}

// nowMs is the wall clock in milliseconds for the playback clock.
func nowMs() float64 {
	return float64(time.Now().UnixNano()) / 1e6
}
