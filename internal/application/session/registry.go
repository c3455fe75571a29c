package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"corkboard-backend/internal/config"
	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
)

type key struct {
	userID   uuid.UUID
	clientID uuid.UUID
}

// Registry holds the live controllers, one per (user, client).
type Registry struct {
	store Store
	feed  Feed
	cfg   config.SessionConfig

	mu       sync.Mutex
	sessions map[key]*Controller
}

// NewRegistry creates an empty registry whose controllers use store and feed.
func NewRegistry(store Store, feed Feed, cfg config.SessionConfig) *Registry {
	return &Registry{store: store, feed: feed, cfg: cfg, sessions: make(map[key]*Controller)}
}

// Open returns the actor's session on clientID, creating and loading it when
// needed. A session whose load failed stays registered so Retry can recover it,
// unless the client is missing or belongs to another organization.
func (r *Registry) Open(ctx context.Context, actor domain.Actor, clientID uuid.UUID) (*Controller, error) {
	if !actor.Valid() {
		return nil, fmt.Errorf("session: %w", domain.ErrUnauthorized)
	}
	k := key{actor.UserID, clientID}

	r.mu.Lock()
	if c, ok := r.sessions[k]; ok {
		r.mu.Unlock()
		if c.actor.OrgID != actor.OrgID {
			return nil, fmt.Errorf("session: %w", domain.ErrUnauthorized)
		}
		return c, nil
	}
	c := New(actor, clientID, r.store, r.feed, r.cfg)
	c.onClose = func() { r.remove(k, c) }
	r.sessions[k] = c
	r.mu.Unlock()

	if err := c.Load(ctx); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrNotFound) {
			r.remove(k, c)
			c.shutdown(false)
			return nil, err
		}
		return c, err
	}
	return c, nil
}

// Get returns an open session.
func (r *Registry) Get(actor domain.Actor, clientID uuid.UUID) (*Controller, error) {
	r.mu.Lock()
	c, ok := r.sessions[key{actor.UserID, clientID}]
	r.mu.Unlock()
	if !ok || c.actor.OrgID != actor.OrgID {
		return nil, fmt.Errorf("session: %w", domain.ErrNotFound)
	}
	return c, nil
}

// Close closes one session. Closing a session that is not open is a no-op.
func (r *Registry) Close(actor domain.Actor, clientID uuid.UUID) {
	r.mu.Lock()
	c, ok := r.sessions[key{actor.UserID, clientID}]
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// CloseUser closes every session of userID and reports how many there were.
func (r *Registry) CloseUser(userID uuid.UUID) int {
	r.mu.Lock()
	var open []*Controller
	for k, c := range r.sessions {
		if k.userID == userID {
			open = append(open, c)
		}
	}
	r.mu.Unlock()
	closeAll(open)
	return len(open)
}

// CloseAll closes every session, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	open := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		open = append(open, c)
	}
	r.mu.Unlock()
	closeAll(open)
}

// Len reports how many sessions are open.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) remove(k key, c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[k] == c {
		delete(r.sessions, k)
	}
}

func closeAll(cs []*Controller) {
	var wg sync.WaitGroup
	for _, c := range cs {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			c.Close()
		}(c)
	}
	wg.Wait()
}
