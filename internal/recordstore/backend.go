package recordstore

import (
	"context"
	"sync"
)

// Backend persists the namespace. Values handed to a Backend are already
// normalized; values it returns must be normalized too.
type Backend interface {
	// Get returns the node at p, or nil when nothing is stored there.
	Get(ctx context.Context, p Path) (any, error)
	// Set replaces the node at p. A nil value removes it.
	Set(ctx context.Context, p Path, v any) error
	// Update applies every write atomically. base is the common ancestor.
	Update(ctx context.Context, base Path, writes []Write) error
	// Delete removes the node at p and everything below it.
	Delete(ctx context.Context, p Path) error
	// Push stores v under a freshly minted child key of p and returns the key.
	Push(ctx context.Context, p Path, v any) (string, error)
	Close() error
}

// MemoryBackend keeps the namespace in process. Used for development and tests.
type MemoryBackend struct {
	mu   sync.RWMutex
	root any
}

// NewMemoryBackend returns an empty in-memory namespace.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Get(ctx context.Context, p Path) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Clone(getAt(m.root, p)), nil
}

func (m *MemoryBackend) Set(ctx context.Context, p Path, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = setAt(m.root, p, Clone(v))
	return nil
}

func (m *MemoryBackend) Update(ctx context.Context, _ Path, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range writes {
		m.root = setAt(m.root, w.Path, Clone(w.Value))
	}
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, p Path) error {
	return m.Set(ctx, p, nil)
}

func (m *MemoryBackend) Push(ctx context.Context, p Path, v any) (string, error) {
	key := NewKey()
	child, err := p.Child(key)
	if err != nil {
		return "", err
	}
	return key, m.Set(ctx, child, v)
}

func (m *MemoryBackend) Close() error { return nil }
