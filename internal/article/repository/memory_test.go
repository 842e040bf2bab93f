package repository

import (
	"context"
	"testing"

	"github.com/osmbc/articles/internal/article"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepo_PutAssignsIDAndVersion(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()

	a := &article.Article{Title: "first"}
	require.NoError(t, r.Put(ctx, a))
	require.Equal(t, int64(1), a.ID)
	require.Equal(t, 1, a.Version)

	b := &article.Article{Title: "second"}
	require.NoError(t, r.Put(ctx, b))
	require.Equal(t, int64(2), b.ID)

	got, err := r.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "first", got.Title)

	_, err = r.Get(ctx, 99)
	require.ErrorIs(t, err, article.ErrNotFound)
}

func TestMemoryRepo_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	a := &article.Article{Title: "v1"}
	require.NoError(t, r.Put(ctx, a))

	x, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	y, err := r.Get(ctx, a.ID)
	require.NoError(t, err)

	x.Title = "from x"
	require.NoError(t, r.Put(ctx, x))
	require.Equal(t, 2, x.Version)

	y.Title = "from y"
	require.ErrorIs(t, r.Put(ctx, y), article.ErrVersionConflict)
	require.Equal(t, 1, y.Version)

	got, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "from x", got.Title)
	require.Equal(t, 2, got.Version)

	ghost := &article.Article{ID: 42, Version: 1}
	require.ErrorIs(t, r.Put(ctx, ghost), article.ErrNotFound)
}

func TestMemoryRepo_CopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	a := &article.Article{Tags: []string{"x"}}
	require.NoError(t, r.Put(ctx, a))
	a.Tags[0] = "mutated"

	got, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, got.Tags)

	got.Tags[0] = "again"
	again, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, again.Tags)
}

func TestMemoryRepo_FindAndOrder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	for _, in := range []*article.Article{
		{Blog: "WN1", Title: "b"},
		{Blog: "WN2", Title: "a"},
		{Blog: "WN1", Title: "c"},
	} {
		require.NoError(t, r.Put(ctx, in))
	}

	list, err := r.Find(ctx, article.Query{"blog": "WN1"}, article.Order{Field: "title", Desc: true})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "c", list[0].Title)
	require.Equal(t, "b", list[1].Title)

	one, err := r.FindOne(ctx, article.Query{"blog": "WN2"})
	require.NoError(t, err)
	require.Equal(t, "a", one.Title)

	_, err = r.FindOne(ctx, article.Query{"blog": "WN9"})
	require.ErrorIs(t, err, article.ErrNotFound)

	blogs, err := r.Distinct(ctx, "blog")
	require.NoError(t, err)
	require.Equal(t, []string{"WN1", "WN2"}, blogs)
}

func TestMemoryRepo_FullTextSearch(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	a := &article.Article{Collection: "see https://osm.test/a"}
	b := &article.Article{Fields: map[string]string{"markdownDE": "Link HTTPS://OSM.TEST/A"}}
	c := &article.Article{Title: "unrelated"}
	for _, in := range []*article.Article{a, b, c} {
		require.NoError(t, r.Put(ctx, in))
	}

	list, err := r.FullTextSearch(ctx, "https://osm.test/a", article.Order{Field: "id"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, a.ID, list[0].ID)
	require.Equal(t, b.ID, list[1].ID)
}
