package inventory

import (
	"context"
	"sync"
)

// LoaderFunc builds a fresh InventoryContext for a user.
type LoaderFunc func(ctx context.Context, userID string) (*InventoryContext, error)

// Registry caches one InventoryContext per user and serializes operations
// on it, so each user's view behaves like a single cooperative session even
// when requests arrive concurrently.
type Registry struct {
	load LoaderFunc

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu sync.Mutex
	ic *InventoryContext
}

// NewRegistry creates a registry that loads contexts with load.
func NewRegistry(load LoaderFunc) *Registry {
	return &Registry{
		load:     load,
		sessions: make(map[string]*session),
	}
}

// Do runs fn with exclusive access to the user's context, loading it first
// if needed. When fn fails with a persistence error the cached context is
// dropped so the next call reloads durable state.
func (r *Registry) Do(ctx context.Context, userID string, fn func(ic *InventoryContext) error) error {
	s := r.session(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ic == nil {
		ic, err := r.load(ctx, userID)
		if err != nil {
			return err
		}
		s.ic = ic
	}

	err := fn(s.ic)
	if err != nil && IsPersistenceFailure(err) {
		s.ic = nil
	}
	return err
}

// Invalidate drops the cached context for a user.
func (r *Registry) Invalidate(userID string) {
	s := r.session(userID)
	s.mu.Lock()
	s.ic = nil
	s.mu.Unlock()
}

func (r *Registry) session(userID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		s = &session{}
		r.sessions[userID] = s
	}
	return s
}
