package events

import (
	"time"

	"github.com/aether-labs/aether/internal/core"
)

// ProgressEvent is one update about a running analysis. It is the only
// payload carried by the broadcaster and is written verbatim to streams.
type ProgressEvent struct {
	State   core.State  `json:"state"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Time    time.Time   `json:"timestamp"`
}

// NewProgressEvent creates an event stamped with the current time.
func NewProgressEvent(state core.State, message string, data interface{}) ProgressEvent {
	return ProgressEvent{
		State:   state,
		Message: message,
		Data:    data,
		Time:    time.Now(),
	}
}

// IsTerminal reports whether no further events follow this one.
func (e ProgressEvent) IsTerminal() bool {
	return e.State.IsTerminal()
}
