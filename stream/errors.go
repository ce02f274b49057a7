package stream

import (
	"context"
	"errors"
)

// Resolution failures. Drivers wrap the underlying cause with one of these so
// callers can branch with errors.Is while the cause stays inspectable.
var (
	// ErrNetwork is a transport-level failure, or the platform refused the
	// channel identity. Retryable by the caller.
	ErrNetwork = errors.New("network error")
	// ErrBootstrap means the site client id could not be obtained.
	ErrBootstrap = errors.New("bootstrap error")
	// ErrToken means the token exchange response did not match the expected shape.
	ErrToken = errors.New("token error")
	// ErrPlaylist means the playlist response was not a valid master playlist.
	ErrPlaylist = errors.New("playlist error")
)

// InterruptionType classifies what a failure means for a caller deciding
// whether to try again.
type InterruptionType int

const (
	// Ended means the stream is simply not available (offline).
	Ended InterruptionType = iota
	// TransientError means a temporary failure (network blip, platform 5xx).
	TransientError
	// Fatal means retrying with the same input will not help.
	Fatal
)

func (t InterruptionType) String() string {
	switch t {
	case Ended:
		return "ended"
	case TransientError:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify determines the type of interruption from an error. offline lists
// additional sentinels that mean "not live right now".
func Classify(err error, offline ...error) InterruptionType {
	if err == nil {
		return Ended
	}
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	for _, o := range offline {
		if errors.Is(err, o) {
			return Ended
		}
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded) {
		return TransientError
	}
	return Fatal
}
