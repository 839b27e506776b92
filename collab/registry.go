package collab

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pagespace/domain/core/valueobjects"
)

// Client receives updates pushed by a session. The websocket transport
// implements it; tests use lighter fakes.
type Client interface {
	Send(update []byte)
}

// Relay fans updates out to other process instances hosting the same
// document. The in-process NoopRelay is used when no broker is configured.
type Relay interface {
	Publish(ctx context.Context, document string, update []byte) error
	// Subscribe delivers remote updates for document until the returned
	// cancel function is called
	Subscribe(document string, apply func(update []byte)) (func(), error)
}

// NoopRelay is a Relay for single-instance deployments
type NoopRelay struct{}

func (NoopRelay) Publish(context.Context, string, []byte) error { return nil }

func (NoopRelay) Subscribe(string, func([]byte)) (func(), error) {
	return func() {}, nil
}

// Registry holds one addressable session per page. Sessions are created
// lazily on the first attach and torn down when the last client detaches.
// Lookup-or-create is atomic per key: two concurrent opens for the same
// page always observe a single document.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	bridge       *Bridge
	relay        Relay
	debounce     time.Duration
	closeTimeout time.Duration
	logger       *zap.Logger
}

// NewRegistry creates a session registry. debounce spaces out periodic
// materializations while a session is being edited; closeTimeout bounds
// the final best-effort materialization on teardown.
func NewRegistry(bridge *Bridge, relay Relay, debounce, closeTimeout time.Duration, logger *zap.Logger) *Registry {
	if relay == nil {
		relay = NoopRelay{}
	}
	return &Registry{
		sessions:     make(map[string]*Session),
		bridge:       bridge,
		relay:        relay,
		debounce:     debounce,
		closeTimeout: closeTimeout,
		logger:       logger,
	}
}

// Attach connects a client to the page's session, creating and seeding
// the session if none exists. It blocks while a concurrent open seeds the
// document or a concurrent close drains it.
func (r *Registry) Attach(ctx context.Context, pageID valueobjects.PageID, c Client) (*Session, error) {
	key := pageID.String()

	for {
		r.mu.Lock()
		s, ok := r.sessions[key]
		if !ok {
			s = newSession(pageID, r)
			r.sessions[key] = s
			r.mu.Unlock()

			// Seed outside the registry lock; other attachers for this
			// page wait on ready.
			s.doc = r.bridge.Open(ctx, pageID)

			unsubscribe, err := r.relay.Subscribe(s.name, s.applyRemote)
			if err != nil {
				r.logger.Warn("relay subscribe failed, session is instance-local",
					zap.String("document", s.name), zap.Error(err))
				unsubscribe = func() {}
			}
			s.unsubscribe = unsubscribe

			close(s.ready)
		} else {
			r.mu.Unlock()
		}

		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			// A stale close is draining; wait it out and re-open.
			select {
			case <-s.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		s.clients[c] = struct{}{}
		n := len(s.clients)
		s.mu.Unlock()

		r.logger.Info("client attached",
			zap.String("document", s.name), zap.Int("clients", n))
		return s, nil
	}
}

// Detach disconnects a client. The last detach triggers a final bounded
// materialization and discards the session; the durable document record,
// if any, outlives it in the document store.
func (r *Registry) Detach(s *Session, c Client) {
	s.mu.Lock()
	delete(s.clients, c)
	if len(s.clients) > 0 {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.mu.Unlock()

	s.stopFlushTimer()
	s.unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), r.closeTimeout)
	defer cancel()
	if err := r.bridge.Materialize(ctx, s.pageID, s.doc); err != nil {
		r.logger.Warn("final materialization failed",
			zap.String("document", s.name), zap.Error(err))
	}

	r.mu.Lock()
	if r.sessions[s.pageID.String()] == s {
		delete(r.sessions, s.pageID.String())
	}
	r.mu.Unlock()

	close(s.done)
	r.logger.Info("session closed", zap.String("document", s.name))
}

// Flush forces an immediate materialization of the page's session, if one
// is active
func (r *Registry) Flush(ctx context.Context, pageID valueobjects.PageID) error {
	r.mu.Lock()
	s, ok := r.sessions[pageID.String()]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	<-s.ready
	return r.bridge.Materialize(ctx, pageID, s.doc)
}

// Active reports whether a session currently exists for the page
func (r *Registry) Active(pageID valueobjects.PageID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[pageID.String()]
	return ok
}

// flush runs the debounced periodic materialization
func (r *Registry) flush(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), r.closeTimeout)
	defer cancel()
	if err := r.bridge.Materialize(ctx, s.pageID, s.doc); err != nil {
		// A transient storage blip must not kill a live session.
		r.logger.Warn("periodic materialization failed",
			zap.String("document", s.name), zap.Error(err))
	}
}
