package timing

import "errors"

var (
	// ErrInvalidTempoMap indicates non-monotonic entry times or a non-positive bpm.
	ErrInvalidTempoMap = errors.New("invalid tempo map")
	// ErrInvalidRate indicates a playback rate <= 0.
	ErrInvalidRate = errors.New("playback rate must be positive")
)
