package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/osmbc/articles/internal/article"
)

// MemoryRepo is an in-memory article store used in development mode and
// unit tests. Records are copied on every read and write so callers never
// share an instance with the store.
type MemoryRepo struct {
	mu     sync.RWMutex
	store  map[int64]*article.Article
	nextID int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[int64]*article.Article)}
}

func (m *MemoryRepo) Get(ctx context.Context, id int64) (*article.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.store[id]; ok {
		return a.Clone(), nil
	}
	return nil, article.ErrNotFound
}

func (m *MemoryRepo) Put(ctx context.Context, a *article.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextID++
		a.ID = m.nextID
		a.Version = 1
		m.store[a.ID] = a.Clone()
		return nil
	}
	cur, ok := m.store[a.ID]
	if !ok {
		return article.ErrNotFound
	}
	if cur.Version != a.Version {
		return article.ErrVersionConflict
	}
	a.Version++
	m.store[a.ID] = a.Clone()
	return nil
}

func (m *MemoryRepo) Find(ctx context.Context, q article.Query, o article.Order) ([]*article.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*article.Article{}
	for _, a := range m.store {
		if matches(a, q) {
			out = append(out, a.Clone())
		}
	}
	sortArticles(out, o)
	return out, nil
}

func (m *MemoryRepo) FindOne(ctx context.Context, q article.Query) (*article.Article, error) {
	list, err := m.Find(ctx, q, article.Order{Field: "id"})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, article.ErrNotFound
	}
	return list[0], nil
}

// FullTextSearch matches text case-insensitively against every string
// attribute of the article.
func (m *MemoryRepo) FullTextSearch(ctx context.Context, text string, o article.Order) ([]*article.Article, error) {
	needle := strings.ToLower(text)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*article.Article{}
	for _, a := range m.store {
		if containsText(a, needle) {
			out = append(out, a.Clone())
		}
	}
	sortArticles(out, o)
	return out, nil
}

func (m *MemoryRepo) Distinct(ctx context.Context, field string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	out := []string{}
	for _, a := range m.store {
		v := a.Field(field)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func matches(a *article.Article, q article.Query) bool {
	for k, v := range q {
		if a.Field(k) != v {
			return false
		}
	}
	return true
}

func containsText(a *article.Article, needle string) bool {
	values := []string{a.Title, a.Collection, a.CategoryEN, a.Comment}
	for _, v := range a.Fields {
		values = append(values, v)
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func sortArticles(list []*article.Article, o article.Order) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if o.Desc {
			a, b = b, a
		}
		if o.Field == "" || o.Field == "id" {
			return a.ID < b.ID
		}
		fa, fb := a.Field(o.Field), b.Field(o.Field)
		if fa == fb {
			return a.ID < b.ID
		}
		return fa < fb
	})
}
