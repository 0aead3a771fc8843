package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/logging"
)

// Launcher registers sessions and runs their pipelines detached from the
// submitting request. Subscribers come and go through the broadcaster
// without affecting the run.
type Launcher struct {
	ctx         context.Context
	store       core.SessionStore
	broadcaster *events.Broadcaster
	coordinator *Coordinator
	sem         *semaphore.Weighted
	logger      *logging.Logger
	newID       func() string
	wg          sync.WaitGroup
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithMaxConcurrent bounds the number of pipelines running at once.
// Zero or less leaves it unbounded.
func WithMaxConcurrent(n int64) LauncherOption {
	return func(l *Launcher) {
		if n > 0 {
			l.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithLauncherLogger sets the logger.
func WithLauncherLogger(log *logging.Logger) LauncherOption {
	return func(l *Launcher) { l.logger = log }
}

// WithIDGenerator replaces the session ID source.
func WithIDGenerator(fn func() string) LauncherOption {
	return func(l *Launcher) { l.newID = fn }
}

// NewLauncher creates a launcher. Pipelines run under ctx, which should
// live as long as the server rather than a single request.
func NewLauncher(ctx context.Context, store core.SessionStore, b *events.Broadcaster, c *Coordinator, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		ctx:         ctx,
		store:       store,
		broadcaster: b,
		coordinator: c,
		logger:      logging.NewNop(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit registers a session for doc, opens its progress topic and starts
// the pipeline in the background. It returns the session ID immediately.
func (l *Launcher) Submit(ctx context.Context, doc core.Document) (string, error) {
	id := l.newID()
	s := core.NewSession(id, doc)
	if err := l.store.Create(ctx, s); err != nil {
		return "", fmt.Errorf("registering session: %w", err)
	}
	l.broadcaster.Open(id)

	l.wg.Add(1)
	go l.run(s)

	l.logger.Info("analysis submitted", "session_id", id, "type", doc.Type, "filename", doc.Filename)
	return id, nil
}

func (l *Launcher) run(s *core.Session) {
	defer l.wg.Done()
	defer l.broadcaster.Close(s.ID())
	log := l.logger.WithSession(s.ID())

	if l.sem != nil {
		if !l.sem.TryAcquire(1) {
			l.broadcaster.Publish(s.ID(), events.NewProgressEvent(core.StateIdle, "⏳ Waiting for a free analysis slot...", nil))
			if err := l.sem.Acquire(l.ctx, 1); err != nil {
				log.Warn("analysis not started", "error", err)
				l.broadcaster.Publish(s.ID(), events.NewProgressEvent(core.StateError, "❌ Error: server shutting down", nil))
				return
			}
		}
		defer l.sem.Release(1)
	}

	// A queued session may have been deleted while waiting for a slot.
	if _, err := l.store.Get(l.ctx, s.ID()); core.IsSessionNotFound(err) {
		log.Info("analysis deleted before it started")
		return
	}

	if _, err := l.coordinator.Run(l.ctx, s); err != nil {
		log.Debug("pipeline ended with error", "error", err)
	}
}

// Wait blocks until every submitted pipeline has returned.
func (l *Launcher) Wait() {
	l.wg.Wait()
}
