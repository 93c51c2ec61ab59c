// Package domain contains entity without logic, just meta-data
package domain

import "time"

type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateStarting SessionState = "starting"
	StateActive   SessionState = "active"
	StateError    SessionState = "error"
)

// Session is the single active generation attempt. At most one non-idle
// Session exists at a time; the orchestrator is its only mutator.
type Session struct {
	ID          string
	EndpointURL string
	StartedAt   time.Time
	State       SessionState

	// Gen is the generation token guarding async results. Any callback or
	// response carrying an older token must be discarded, never applied.
	Gen uint64
}
