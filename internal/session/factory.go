package session

import (
	"fmt"

	"github.com/aether-labs/aether/internal/core"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Options selects and configures a store backend.
type Options struct {
	Backend string
	// Path is the SQLite database file; ignored by the memory backend.
	Path string
}

// New creates the SessionStore for opts.
func New(opts Options) (core.SessionStore, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
	}
}
