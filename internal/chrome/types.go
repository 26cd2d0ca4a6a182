// Package chrome implements the rendering engine's page session and page
// pool: the stateful peers that drive one CDP target each through the
// navigate/extract lifecycle, and the bounded, recyclable set of them.
package chrome

import "time"

// State is a page session's position in its render state machine.
type State int

const (
	StateIdle State = iota
	StateConfiguring
	StateNavigating
	StateAwaitingReady
	StateExtracting
	StateResetting
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateNavigating:
		return "navigating"
	case StateAwaitingReady:
		return "awaiting_ready"
	case StateExtracting:
		return "extracting"
	case StateResetting:
		return "resetting"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// SessionConfig carries the knobs a session consults while driving a render.
type SessionConfig struct {
	MaxIterations int
	PollInterval  time.Duration
	SettleWindow  time.Duration
	UserAgent     string
}

// navigateTimeout bounds how long Navigate waits to observe
// frameStartedLoading before declaring a NavigateError (spec §4.2 step 2).
const navigateTimeout = 2 * time.Second
