package schedule

import "errors"

var (
	// ErrInvalidTrack indicates a track that can't be registered.
	ErrInvalidTrack = errors.New("invalid track")
	// ErrUnknownTrack indicates an id with no registered track.
	ErrUnknownTrack = errors.New("unknown track")
)
