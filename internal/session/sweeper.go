package session

import (
	"context"
	"time"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/logging"
)

// Sweeper periodically evicts finished sessions older than the retention.
type Sweeper struct {
	store     core.SessionStore
	retention time.Duration
	interval  time.Duration
	logger    *logging.Logger
	onEvict   func(id string)
	now       func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithEvictHook is called with every evicted session ID, e.g. to drop its
// progress topic.
func WithEvictHook(fn func(id string)) SweeperOption {
	return func(s *Sweeper) { s.onEvict = fn }
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(l *logging.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper. A zero retention disables it.
func NewSweeper(store core.SessionStore, retention, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a retention is configured.
func (s *Sweeper) Enabled() bool {
	return s.retention > 0 && s.interval > 0
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.Enabled() {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("session sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce evicts expired sessions now and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)

	var expired []string
	if s.onEvict != nil {
		snaps, err := s.store.List(ctx)
		if err != nil {
			return 0, err
		}
		for _, snap := range snaps {
			if snap.State.IsTerminal() && snap.UpdatedAt.Before(cutoff) {
				expired = append(expired, snap.ID)
			}
		}
	}

	n, err := s.store.Sweep(ctx, cutoff)
	if err != nil {
		return n, err
	}
	for _, id := range expired {
		s.onEvict(id)
	}
	if n > 0 {
		s.logger.Info("swept expired sessions", "count", n, "retention", s.retention)
	}
	return n, nil
}
