package bots

import "errors"

var (
	// ErrMissingWorkspace is returned when a call carries no workspace id
	ErrMissingWorkspace = errors.New("workspace id is required")

	// ErrInvalidSettings wraps a settings validation failure
	ErrInvalidSettings = errors.New("invalid bot settings")

	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("orchestrator is closed")
)
