package device

import (
	"sync"

	"github.com/snugbit/toygateway/pkg/led"
	"github.com/snugbit/toygateway/pkg/logging"
)

// ledPatternFor maps a state to the pattern name its controller should
// display (§4.6: "transitions drive an LED pattern controller").
func ledPatternFor(s State) string {
	switch s {
	case StateIdle:
		return "idle-breathe"
	case StateConnecting:
		return "connecting-pulse"
	case StateListening:
		return "listening-solid"
	case StateProcessing:
		return "processing-spin"
	case StateSpeaking:
		return "speaking-wave"
	case StateError:
		return "error-flash"
	case StateOffline:
		return "offline-dim"
	default:
		return "unknown"
	}
}

// Machine holds the device's current state and drives led on every
// transition. Entering error or offline is always permitted ("entered
// from: any" in §4.6's table); every other transition is checked against
// canTransition and, if disallowed, logged and ignored rather than forced
// through — a malformed transition is a bug to surface, not to paper over.
type Machine struct {
	mu     sync.Mutex
	state  State
	led    led.Controller
	logger logging.Logger
}

func NewMachine(l led.Controller, logger logging.Logger) *Machine {
	if l == nil {
		l = led.Noop{}
	}
	if logger == nil {
		logger = logging.Noop()
	}
	m := &Machine{state: StateIdle, led: l, logger: logger}
	m.led.Set(ledPatternFor(StateIdle))
	return m
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Enter attempts a transition to next, returning whether it took effect.
func (m *Machine) Enter(next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next != StateError && next != StateOffline && !canTransition(m.state, next) {
		m.logger.WarnPrintf("rejected state transition %s -> %s", m.state, next)
		return false
	}
	if m.state == next {
		return true
	}
	m.state = next
	m.led.Set(ledPatternFor(next))
	return true
}
