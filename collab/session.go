package collab

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pagespace/collab/crdt"
	"pagespace/domain/core/valueobjects"
)

// Session is the live editing surface for one page. All connected clients
// for that page share its document; updates are merged in, echoed to the
// other clients, and relayed to sibling instances.
type Session struct {
	pageID valueobjects.PageID
	name   string

	registry *Registry

	ready chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	doc     *crdt.Document
	clients map[Client]struct{}
	closing bool

	flushTimer  *time.Timer
	unsubscribe func()
}

func newSession(pageID valueobjects.PageID, r *Registry) *Session {
	return &Session{
		pageID:   pageID,
		name:     DocumentName(pageID),
		registry: r,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		clients:  make(map[Client]struct{}),
	}
}

// Name returns the session's document name
func (s *Session) Name() string { return s.name }

// State encodes the full current document. A newly attached client gets
// this as its first frame; the encoding doubles as an update, so the
// client merges it like any other.
func (s *Session) State() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.EncodeState()
}

// Apply merges an update from a connected client, broadcasts it to the
// page's other clients, and publishes it to sibling instances. A corrupt
// frame is dropped; the session and its other clients are unaffected.
func (s *Session) Apply(ctx context.Context, from Client, update []byte) error {
	s.mu.Lock()
	if err := s.doc.ApplyUpdate(update); err != nil {
		s.mu.Unlock()
		return err
	}
	for c := range s.clients {
		if c != from {
			c.Send(update)
		}
	}
	s.scheduleFlushLocked()
	s.mu.Unlock()

	if err := s.registry.relay.Publish(ctx, s.name, update); err != nil {
		s.registry.logger.Warn("relay publish failed",
			zap.String("document", s.name), zap.Error(err))
	}
	return nil
}

// applyRemote merges an update that arrived over the relay. It is not
// re-published.
func (s *Session) applyRemote(update []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	if err := s.doc.ApplyUpdate(update); err != nil {
		s.registry.logger.Warn("dropped corrupt relayed update",
			zap.String("document", s.name), zap.Error(err))
		return
	}
	for c := range s.clients {
		c.Send(update)
	}
	s.scheduleFlushLocked()
}

// scheduleFlushLocked arms the debounced materialization timer. Callers
// hold s.mu.
func (s *Session) scheduleFlushLocked() {
	if s.registry.debounce <= 0 {
		return
	}
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushTimer = time.AfterFunc(s.registry.debounce, func() {
		s.mu.Lock()
		closing := s.closing
		s.mu.Unlock()
		if closing {
			return
		}
		s.registry.flush(s)
	})
}

func (s *Session) stopFlushTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
}
