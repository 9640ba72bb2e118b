package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for the review workflow. Callers match with errors.Is.
var (
	// ErrMalformedEncoding means an import payload could not be parsed at all.
	ErrMalformedEncoding = errors.New("malformed encoding")
	// ErrSchemaViolation means an import payload parsed but has the wrong shape.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrInvalidTransition means a summary is not in a state that allows the action.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrRemoteFailure wraps any backend call failure, network or status.
	ErrRemoteFailure = errors.New("remote failure")
	// ErrUsage means the caller misused an operation, e.g. an empty batch.
	ErrUsage = errors.New("usage error")
	// ErrCancelled means a batch stopped early because its context was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// remoteErr tags a backend error so errors.Is(err, ErrRemoteFailure) holds
// while the transport error stays reachable through errors.As.
func remoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemoteFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteFailure, err)
}
