package types

import "errors"

var (
	// ErrInput marks a malformed request or unsupported file.
	ErrInput = errors.New("invalid input")
	// ErrNotFound marks a content hash with no cached analysis.
	ErrNotFound = errors.New("not found")
	// ErrNotConfigured is returned when a collaborator failed to initialize at boot.
	ErrNotConfigured = errors.New("subsystem not configured")
	// ErrUpstreamTimeout is returned when the analysis service exceeds its bound.
	ErrUpstreamTimeout = errors.New("upstream timeout")
)
