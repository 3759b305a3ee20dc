package common

import (
	"errors"
)

// Common error constants
var (
	// ErrInvalidConfig is returned when an invalid configuration is provided
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedPortal is returned when an unsupported portal is specified
	ErrUnsupportedPortal = errors.New("unsupported portal")

	// ErrSessionNotEstablished is returned when the entry page of a portal
	// cannot be opened at all. This is the only failure that aborts a run.
	ErrSessionNotEstablished = errors.New("portal session could not be established")

	// ErrNotImplemented is returned when a method is not implemented
	ErrNotImplemented = errors.New("method not implemented")
)
