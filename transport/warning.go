package transport

import "fmt"

// WarningCode classifies recoverable conditions. Fatal conditions are
// ordinary errors; warnings mean the operation went ahead in degraded form.
type WarningCode int

const (
	// WarnLoopDisabled: loop range was invalid, looping switched off.
	WarnLoopDisabled WarningCode = iota
	// WarnSeekClamped: seek target was outside [0, contentMax].
	WarnSeekClamped
	// WarnTempoMapRetained: a tempo map edit was rejected, previous map kept.
	WarnTempoMapRetained
	// WarnDegradedPrecision: scheduling fell back to the global bpm.
	WarnDegradedPrecision
)

func (c WarningCode) String() string {
	switch c {
	case WarnLoopDisabled:
		return "loop-disabled"
	case WarnSeekClamped:
		return "seek-clamped"
	case WarnTempoMapRetained:
		return "tempo-map-retained"
	case WarnDegradedPrecision:
		return "degraded-precision"
	}
	return "unknown"
}

// Warning is a recoverable condition surfaced to the caller as a value.
type Warning struct {
	Code    WarningCode
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

func warnf(code WarningCode, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}
