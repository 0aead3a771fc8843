package core

import (
	"context"
	"time"
)

// =============================================================================
// Session Store Port
// =============================================================================

// SessionStore is the registry of analysis sessions. Implementations must be
// safe for concurrent use: submissions, streams and background pipelines for
// different sessions interleave.
type SessionStore interface {
	// Create registers a new session. It fails if the ID is already taken.
	Create(ctx context.Context, s *Session) error

	// Get returns the session or a SessionNotFoundError.
	Get(ctx context.Context, id string) (*Session, error)

	// Save persists the current state of a session created earlier.
	Save(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting an unknown ID returns SessionNotFoundError.
	Delete(ctx context.Context, id string) error

	// List returns snapshots of all known sessions, newest first.
	List(ctx context.Context) ([]SessionSnapshot, error)

	// Sweep removes terminal sessions last updated before cutoff and
	// returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases resources held by the store.
	Close() error
}
