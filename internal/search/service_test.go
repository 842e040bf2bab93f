package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/internal/article/repository"
	"github.com/stretchr/testify/require"
)

func TestService_FallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	for _, a := range []*article.Article{
		{Blog: "WN1", Collection: "https://osm.test/x"},
		{Blog: "WN3", Fields: map[string]string{"markdownEN": "see https://osm.test/x"}},
		{Blog: "WN2", Title: "nothing"},
	} {
		require.NoError(t, store.Put(ctx, a))
	}

	s := NewService(nil, store)
	list, err := s.Search(ctx, "https://osm.test/x")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "WN3", list[0].Blog)
	require.Equal(t, "WN1", list[1].Blog)

	// nothing to index without meilisearch
	s.Index(list[0])
}

func TestService_LoadDropsStaleHits(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	hit := &article.Article{Blog: "WN1", Collection: "https://osm.test/x"}
	stale := &article.Article{Blog: "WN2", Collection: "changed since indexing"}
	require.NoError(t, store.Put(ctx, hit))
	require.NoError(t, store.Put(ctx, stale))

	s := NewService(nil, store)
	list, err := s.load(ctx, []int64{stale.ID, hit.ID, 999}, "https://osm.test/x")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, hit.ID, list[0].ID)
}

func TestRecord_FlattensMarkdown(t *testing.T) {
	a := &article.Article{ID: 3, Blog: "WN1", Fields: map[string]string{"markdownDE": "x", "other": "y"}}
	doc := record(a)
	require.Equal(t, int64(3), doc["id"])
	require.Equal(t, "x", doc["markdownDE"])
	require.NotContains(t, doc, "other")
}

// fakeMeili answers every task endpoint with an enqueued task and records
// the calls it saw.
type fakeMeili struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeMeili) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/health" {
		_, _ = w.Write([]byte(`{"status":"available"}`))
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"taskUid":1,"indexUid":"osmbc_articles","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"}`))
}

func (f *fakeMeili) saw(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func TestService_IndexDropsRetiredArticles(t *testing.T) {
	fake := &fakeMeili{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	m := NewMeili(srv.URL, "")
	defer m.Close()
	require.True(t, m.Healthy())

	s := NewService(m, repository.NewMemoryRepo())
	s.Index(&article.Article{ID: 7, Blog: "WN1", Title: "live"})
	s.Index(&article.Article{ID: 8, Blog: "Trash"})
	s.Index(&article.Article{ID: 9, Blog: "WN1", CategoryEN: article.CategoryUnpublished})

	require.Eventually(t, func() bool {
		return fake.saw("POST /indexes/osmbc_articles/documents") &&
			fake.saw("DELETE /indexes/osmbc_articles/documents/8") &&
			fake.saw("DELETE /indexes/osmbc_articles/documents/9")
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, fake.saw("DELETE /indexes/osmbc_articles/documents/7"))
}
