package recorder

import "fmt"

// State is the lifecycle position of a Recorder.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateLaunching
	StateRecording
	StateStopping
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateLaunching:
		return "launching"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name as produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}
