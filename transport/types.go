// Package transport owns the canonical playback position. A finite state
// machine arbitrates user input, the real-time clock and legacy
// seconds-domain writers, and every mutation funnels through a single
// authority gate.
package transport

// Status is the transport state machine position.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
	StatusSeeking
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusSeeking:
		return "seeking"
	}
	return "unknown"
}

// AuthorityTag records which domain last authored the canonical position.
// It is a closed set; every mutation site switches over it exhaustively.
type AuthorityTag int

const (
	// AuthorityTick marks a direct tick-domain write (initial state, tests).
	AuthorityTick AuthorityTag = iota
	// AuthorityUser marks user input: seeks, quantize snaps.
	AuthorityUser
	// AuthorityClock marks real-time playback advancement.
	AuthorityClock
	// AuthorityLegacySeconds marks a write that arrived in seconds and was
	// converted to ticks on entry.
	AuthorityLegacySeconds
)

func (t AuthorityTag) String() string {
	switch t {
	case AuthorityTick:
		return "tick"
	case AuthorityUser:
		return "user"
	case AuthorityClock:
		return "clock"
	case AuthorityLegacySeconds:
		return "legacy-seconds"
	}
	return "unknown"
}

// QuantizeMode selects the grid that play() snaps to.
type QuantizeMode int

const (
	QuantizeOff QuantizeMode = iota
	QuantizeBar
)

func (q QuantizeMode) String() string {
	if q == QuantizeBar {
		return "bar"
	}
	return "off"
}

// Snapshot is the per-frame read view of the canonical position. Beats and
// seconds are derived from the tick at read time, never stored.
type Snapshot struct {
	Tick      int64
	Beats     float64
	Seconds   float64
	Authority AuthorityTag
	Status    Status
}
