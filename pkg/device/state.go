// Package device implements the client-side half of the voice-interaction
// protocol: connection lifecycle, reconnect/backoff, the capture and
// playback pipelines, and the state machine that drives an LED controller
// through them (§4.5, §4.6).
package device

import "encoding/json"

// State is one of the device's seven lifecycle states (§4.6). Grounded on
// pkg/chatgear/state.go's GearState (int enum, String/UnmarshalJSON,
// time-ordered merge semantics) but with this domain's own state names and
// transition table; the teacher's ten gear states do not map onto it.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateProcessing
	StateSpeaking
	StateError
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "idle":
		*s = StateIdle
	case "connecting":
		*s = StateConnecting
	case "listening":
		*s = StateListening
	case "processing":
		*s = StateProcessing
	case "speaking":
		*s = StateSpeaking
	case "error":
		*s = StateError
	case "offline":
		*s = StateOffline
	default:
		*s = StateIdle
	}
	return nil
}

// canTransition reports whether the §4.6 transition table allows moving
// from s to next. "any" origins (error, offline) are handled by the
// callers that trigger them rather than encoded as wildcard edges here, to
// keep the table exhaustive and readable.
func canTransition(s, next State) bool {
	switch s {
	case StateIdle:
		return next == StateListening || next == StateOffline || next == StateConnecting
	case StateConnecting:
		return next == StateIdle || next == StateOffline
	case StateListening:
		return next == StateProcessing || next == StateOffline || next == StateError
	case StateProcessing:
		return next == StateSpeaking || next == StateError || next == StateIdle || next == StateOffline
	case StateSpeaking:
		return next == StateIdle || next == StateOffline || next == StateError
	case StateError:
		return next == StateIdle || next == StateOffline
	case StateOffline:
		return next == StateConnecting || next == StateIdle
	default:
		return false
	}
}
