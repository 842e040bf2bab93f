package blog

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory container store used in development mode and
// in tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*Blog
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*Blog)}
}

func (m *MemoryRepo) Save(ctx context.Context, b *Blog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[b.Name] = copyBlog(b)
	return nil
}

func (m *MemoryRepo) FindByName(ctx context.Context, name string) (*Blog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.store[name]; ok {
		return copyBlog(b), nil
	}
	return nil, ErrNotFound
}

func copyBlog(b *Blog) *Blog {
	out := &Blog{Name: b.Name, Status: b.Status}
	if b.Closed != nil {
		out.Closed = make(map[string]bool, len(b.Closed))
		for k, v := range b.Closed {
			out.Closed[k] = v
		}
	}
	if b.Exported != nil {
		out.Exported = make(map[string]bool, len(b.Exported))
		for k, v := range b.Exported {
			out.Exported[k] = v
		}
	}
	return out
}

// MemoryOrphanCache keeps the orphan list for a single process.
type MemoryOrphanCache struct {
	mu    sync.Mutex
	names []string
	valid bool
}

func NewMemoryOrphanCache() *MemoryOrphanCache {
	return &MemoryOrphanCache{}
}

func (c *MemoryOrphanCache) Get(ctx context.Context) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return nil, false, nil
	}
	return append([]string(nil), c.names...), true, nil
}

func (c *MemoryOrphanCache) Set(ctx context.Context, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append([]string(nil), names...)
	c.valid = true
	return nil
}

func (c *MemoryOrphanCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = nil
	c.valid = false
	return nil
}
