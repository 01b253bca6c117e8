package gallery

import (
	"context"
	"sync"
)

// Store persists a whole gallery. Implementations must never expose a partial
// write to a later Load.
type Store interface {
	// Load returns the persisted gallery, or an empty one if nothing was saved yet.
	Load(ctx context.Context) (Gallery, error)
	// Save replaces the persisted gallery with g.
	Save(ctx context.Context, g Gallery) error
}

// Updater is implemented by stores that run load-modify-save as one unit.
type Updater interface {
	Update(ctx context.Context, fn func(Gallery) error) error
}

// Update loads the gallery, applies fn and saves the result. If fn fails the
// store is left untouched. Stores implementing Updater handle the sequence themselves.
func Update(ctx context.Context, s Store, fn func(Gallery) error) error {
	if u, ok := s.(Updater); ok {
		return u.Update(ctx, fn)
	}
	return update(ctx, s, fn)
}

func update(ctx context.Context, s Store, fn func(Gallery) error) error {
	g, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(g); err != nil {
		return err
	}
	return s.Save(ctx, g)
}

// LockedStore serialises access to a Store within one process so concurrent
// enrollments cannot lose each other's updates. It does not protect against
// other processes writing the same backend.
type LockedStore struct {
	mu    sync.Mutex
	inner Store
}

// NewLockedStore wraps s.
func NewLockedStore(s Store) *LockedStore {
	return &LockedStore{inner: s}
}

func (l *LockedStore) Load(ctx context.Context) (Gallery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Load(ctx)
}

func (l *LockedStore) Save(ctx context.Context, g Gallery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Save(ctx, g)
}

// Update holds the lock across the whole load-modify-save sequence.
func (l *LockedStore) Update(ctx context.Context, fn func(Gallery) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Update(ctx, l.inner, fn)
}

// MemoryStore keeps the gallery in memory. Useful for tests and dry runs.
type MemoryStore struct {
	mu sync.Mutex
	g  Gallery
}

// NewMemoryStore returns a store seeded with a copy of g (which may be nil).
func NewMemoryStore(g Gallery) *MemoryStore {
	if g == nil {
		return &MemoryStore{}
	}
	return &MemoryStore{g: g.Clone()}
}

func (m *MemoryStore) Load(ctx context.Context) (Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.g == nil {
		return New(), nil
	}
	return m.g.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, g Gallery) error {
	if err := g.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.g = g.Clone()
	return nil
}
