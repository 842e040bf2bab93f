package changes

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryLog keeps records in insertion order.
type MemoryLog struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *r)
	return nil
}

func (m *MemoryLog) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.records {
		if m.records[i].ID == id {
			r := m.records[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryLog) Find(ctx context.Context, f Filter) ([]*Record, error) {
	match := func(r *Record) bool { return true }
	if f.Date != "" {
		from, to, err := dateRange(f.Date)
		if err != nil {
			return nil, err
		}
		match = func(r *Record) bool {
			ts := r.Timestamp.UTC()
			return !ts.Before(from) && ts.Before(to)
		}
	}
	m.mu.RLock()
	out := []*Record{}
	for i := range m.records {
		r := m.records[i]
		if f.Table != "" && r.Table != f.Table {
			continue
		}
		if f.ObjectID != 0 && r.ObjectID != f.ObjectID {
			continue
		}
		if f.User != "" && r.User != f.User {
			continue
		}
		if f.Property != "" && r.Property != f.Property {
			continue
		}
		if f.Blog != "" && r.Blog != f.Blog {
			continue
		}
		if !match(&r) {
			continue
		}
		out = append(out, &r)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if f.Ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
