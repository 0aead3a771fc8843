// Package events fans progress updates out to the listeners of each analysis
// session. Every session has its own topic; publishers never block on slow
// subscribers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/aether-labs/aether/internal/core"
)

// DefaultBufferSize is used when NewBroadcaster gets a non-positive size.
const DefaultBufferSize = 64

// Subscription is one listener attached to a session topic.
type Subscription struct {
	id        uint64
	sessionID string
	ch        chan ProgressEvent
	closeOnce sync.Once
}

// Events returns the channel delivering events. It is closed when the
// subscription ends or the session topic is closed.
func (s *Subscription) Events() <-chan ProgressEvent { return s.ch }

// SessionID returns the session this subscription listens to.
func (s *Subscription) SessionID() string { return s.sessionID }

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

type topic struct {
	subs   map[uint64]*Subscription
	last   *ProgressEvent
	closed bool
}

// Broadcaster is a per-session publish/subscribe hub with ring-buffer
// backpressure: when a subscriber's buffer is full the oldest pending event
// is dropped to make room for the new one.
type Broadcaster struct {
	mu         sync.Mutex
	topics     map[string]*topic
	bufferSize int
	nextID     uint64
	dropped    int64
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broadcaster{
		topics:     make(map[string]*topic),
		bufferSize: bufferSize,
	}
}

// Open registers a topic for a session. Opening an existing topic is a no-op.
func (b *Broadcaster) Open(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[sessionID]; !ok {
		b.topics[sessionID] = &topic{subs: make(map[uint64]*Subscription)}
	}
}

// Subscribe attaches a new listener to a session. The most recent event, if
// any, is replayed first so late subscribers learn the current state. On a
// closed topic the subscription receives that last event and is then closed.
func (b *Broadcaster) Subscribe(sessionID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok {
		return nil, &core.SessionNotFoundError{ID: sessionID}
	}

	b.nextID++
	sub := &Subscription{
		id:        b.nextID,
		sessionID: sessionID,
		ch:        make(chan ProgressEvent, b.bufferSize),
	}
	if t.last != nil {
		sub.ch <- *t.last
	}
	if t.closed {
		sub.close()
		return sub, nil
	}
	t.subs[sub.id] = sub
	return sub, nil
}

// Unsubscribe detaches a listener and closes its channel. It never affects
// the pipeline publishing to the session.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[sub.sessionID]; ok {
		delete(t.subs, sub.id)
	}
	sub.close()
}

// Publish fans an event out to every subscriber of the session. Publishing
// to an unknown or closed session is a no-op.
func (b *Broadcaster) Publish(sessionID string, ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok || t.closed {
		return
	}
	t.last = &ev

	for _, sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
				atomic.AddInt64(&b.dropped, 1)
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				atomic.AddInt64(&b.dropped, 1)
			}
		}
	}
}

// Close ends a session topic: subscriber channels are closed after they
// drain, and later subscribers only see the final event.
func (b *Broadcaster) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok || t.closed {
		return
	}
	t.closed = true
	for id, sub := range t.subs {
		sub.close()
		delete(t.subs, id)
	}
}

// Remove closes and forgets a session topic.
func (b *Broadcaster) Remove(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok {
		return
	}
	for _, sub := range t.subs {
		sub.close()
	}
	delete(b.topics, sessionID)
}

// Shutdown closes every topic.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, t := range b.topics {
		for _, sub := range t.subs {
			sub.close()
		}
		delete(b.topics, id)
	}
}

// SubscriberCount returns the number of live subscribers for a session.
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[sessionID]; ok {
		return len(t.subs)
	}
	return 0
}

// DroppedCount returns the total number of events dropped on full buffers.
func (b *Broadcaster) DroppedCount() int64 {
	return atomic.LoadInt64(&b.dropped)
}
