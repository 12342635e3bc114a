package server

import (
	"github.com/onnwee/autovoice/promote"
)

// StatusProvider reports the promotion engine's current state.
type StatusProvider interface {
	Status() promote.Status
}

// ConnectionChecker reports whether the chat transport is connected.
type ConnectionChecker interface {
	Connected() bool
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	status    StatusProvider
	transport ConnectionChecker
	settings  map[string]string
}

// NewHandlers creates a new Handlers instance. settings is served verbatim
// from /config and must not contain secrets.
func NewHandlers(status StatusProvider, transport ConnectionChecker, settings map[string]string) *Handlers {
	return &Handlers{
		status:    status,
		transport: transport,
		settings:  settings,
	}
}
