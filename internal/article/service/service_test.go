package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/internal/article/repository"
	"github.com/osmbc/articles/internal/blog"
	"github.com/osmbc/articles/internal/changes"
	"github.com/osmbc/articles/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type recorder struct {
	mu     sync.Mutex
	events []string
	before map[string]string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) FieldsChanged(ctx context.Context, actor string, before *article.Article, delta map[string]string) error {
	r.mu.Lock()
	r.before = map[string]string{article.FieldTitle: before.Title}
	r.mu.Unlock()
	r.add("fields:" + actor)
	return nil
}

func (r *recorder) CommentAdded(ctx context.Context, actor string, a *article.Article, text string) error {
	r.add("comment:" + text)
	return errors.New("mail server down")
}

func (r *recorder) CommentEdited(ctx context.Context, actor string, a *article.Article, index int, text string) error {
	r.add("edit:" + text)
	return nil
}

type fakeExpander struct {
	urls map[string]string
	err  error
}

func (f *fakeExpander) Expand(ctx context.Context, rawURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if u, ok := f.urls[rawURL]; ok {
		return u, nil
	}
	return rawURL, nil
}

type fixture struct {
	svc      *Service
	store    *repository.MemoryRepo
	log      *changes.MemoryLog
	blogs    *blog.MemoryRepo
	notes    *recorder
	expander *fakeExpander
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryRepo(),
		log:      changes.NewMemoryLog(),
		blogs:    blog.NewMemoryRepo(),
		notes:    &recorder{},
		expander: &fakeExpander{urls: map[string]string{}},
	}
	c := &clock{t: t0}
	f.svc = New(Deps{
		Articles:  f.store,
		Changes:   f.log,
		Blogs:     f.blogs,
		Notifier:  f.notes,
		Expander:  f.expander,
		Orphans:   blog.NewMemoryOrphanCache(),
		Languages: []string{"DE", "EN", "ES"},
		Flags:     []string{"https://flags.test/de.svg"},
		Now:       c.Now,
	})
	ctx := context.Background()
	require.NoError(t, f.blogs.Save(ctx, &blog.Blog{Name: "WN1", Status: blog.StatusOpen}))
	return f
}

// stored inserts a directly, bypassing the service, and returns the id.
func (f *fixture) stored(t *testing.T, a *article.Article) *article.Article {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), a))
	return a
}

func (f *fixture) records(t *testing.T, id int64) []*changes.Record {
	t.Helper()
	list, err := f.log.Find(context.Background(), changes.Filter{Table: article.Table, ObjectID: id})
	require.NoError(t, err)
	return list
}

func intp(v int) *int { return &v }

func TestProposeUpdate_FreshDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Blog: "WN1"})
	require.Equal(t, 1, a.Version)

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"collection": "hello"}})
	require.NoError(t, err)
	require.Equal(t, 2, a.Version)
	require.Equal(t, "hello", a.Collection)

	recs := f.records(t, a.ID)
	require.Len(t, recs, 1)
	require.Equal(t, "collection", recs[0].Property)
	require.Equal(t, "", recs[0].From)
	require.Equal(t, "hello", recs[0].To)
	require.Equal(t, "alice", recs[0].User)
	require.Equal(t, "WN1", recs[0].Blog)

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)
	require.Equal(t, "hello", got.Collection)
}

func TestProposeUpdate_VersionGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, "alice", map[string]string{"title": "A", "blog": "WN1"})
	require.NoError(t, err)
	require.Equal(t, 2, a.Version)
	before := testutil.ToFloat64(metrics.Mutations.WithLabelValues("conflict"))

	for _, v := range []int{a.Version - 1, a.Version + 1} {
		err := f.svc.ProposeUpdate(ctx, "bob", a, Proposal{Version: intp(v), Fields: map[string]string{"title": "B"}})
		require.ErrorIs(t, err, article.ErrConflict)
		var ce *article.ConflictError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, "version mismatch", ce.Message)
	}

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "A", got.Title)
	require.Equal(t, 2, got.Version)
	require.Equal(t, "A", a.Title)
	require.Len(t, f.records(t, a.ID), 2)
	require.Equal(t, before+2, testutil.ToFloat64(metrics.Mutations.WithLabelValues("conflict")))
}

func TestProposeUpdate_ConcurrentReaders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, "alice", map[string]string{"title": "A"})
	require.NoError(t, err)

	first, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	second, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, first.Version)

	require.NoError(t, f.svc.ProposeUpdate(ctx, "alice", first, Proposal{Version: intp(2), Fields: map[string]string{"title": "first"}}))
	require.Equal(t, 3, first.Version)

	err = f.svc.ProposeUpdate(ctx, "bob", second, Proposal{Version: intp(2), Fields: map[string]string{"title": "second"}})
	require.ErrorIs(t, err, article.ErrConflict)
	require.Equal(t, 2, second.Version)

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "first", got.Title)
}

func TestProposeUpdate_DiffGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Title: "B"})

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{
		Fields: map[string]string{"title": "C"},
		Old:    map[string]string{"title": "A"},
	})
	require.ErrorIs(t, err, article.ErrConflict)
	var ce *article.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "title", ce.Field)

	err = f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Fields: map[string]string{"title": "C"}})
	require.ErrorIs(t, err, article.ErrValidation)

	b := f.stored(t, &article.Article{Title: "A"})
	err = f.svc.ProposeUpdate(ctx, "alice", b, Proposal{
		Fields: map[string]string{"title": "A", "markdownDE": "Hallo"},
		Old:    map[string]string{"title": "A", "markdownDE": ""},
	})
	require.NoError(t, err)
	recs := f.records(t, b.ID)
	require.Len(t, recs, 1)
	require.Equal(t, "markdownDE", recs[0].Property)
	require.Equal(t, "Hallo", b.Fields["markdownDE"])

	require.Empty(t, f.records(t, a.ID))
}

func TestProposeUpdate_NoopElision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Title: "A", Blog: "WN1"})

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{
		"title":      "  A  ",
		"markdownEN": "   ",
		"collection": " new ",
	}})
	require.NoError(t, err)
	recs := f.records(t, a.ID)
	require.Len(t, recs, 1)
	require.Equal(t, "collection", recs[0].Property)
	require.Equal(t, "new", a.Collection)
	_, ok := a.Fields["markdownEN"]
	require.False(t, ok)
}

func TestProposeUpdate_NoopWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Title: "A", Blog: "WN1"})

	require.NoError(t, f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"title": "A"}}))
	require.Equal(t, 1, a.Version)

	// every field matches its baseline
	require.NoError(t, f.svc.ProposeUpdate(ctx, "alice", a, Proposal{
		Fields: map[string]string{"title": "A", "markdownDE": ""},
		Old:    map[string]string{"title": "A", "markdownDE": ""},
	}))
	require.Equal(t, 1, a.Version)

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
	require.Empty(t, f.records(t, a.ID))
	require.Empty(t, f.notes.events)

	// a second editor still holding version 1 is not rejected
	require.NoError(t, f.svc.ProposeUpdate(ctx, "bob", got, Proposal{Version: intp(1), Fields: map[string]string{"title": "B"}}))
	require.Equal(t, 2, got.Version)
	require.Len(t, f.records(t, a.ID), 1)
}

func TestProposeUpdate_ReservedNamesSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{})

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{
		"save":     "x",
		"votes":    "y",
		"title":    "T",
		"myExtra":  "kept",
		"doUnlock": "z",
	}})
	require.NoError(t, err)
	require.Equal(t, "T", a.Title)
	require.Equal(t, map[string]string{"myExtra": "kept"}, a.Fields)

	var props []string
	for _, r := range f.records(t, a.ID) {
		props = append(props, r.Property)
	}
	require.ElementsMatch(t, []string{"title", "myExtra"}, props)
}

func TestProposeUpdate_UnpublishGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Title: "A", Blog: "WN1"})

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"categoryEN": article.CategoryUnpublished}})
	require.ErrorIs(t, err, article.ErrValidation)
	err = f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"blog": blog.Trash, "unpublishReason": "   "}})
	require.ErrorIs(t, err, article.ErrValidation)
	for _, fields := range []map[string]string{
		{"blog": " " + blog.Trash + " "},
		{"categoryEN": article.CategoryUnpublished + "\n"},
	} {
		err = f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: fields})
		require.ErrorIs(t, err, article.ErrValidation)
	}

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
	require.Empty(t, got.CommentList)
	require.Empty(t, f.records(t, a.ID))

	err = f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{
		"categoryEN":         article.CategoryUnpublished,
		"unpublishReason":    "duplicate",
		"unpublishReference": "#12",
	}})
	require.NoError(t, err)
	require.Len(t, a.CommentList, 1)
	require.Equal(t, "#solved because set to --unpublished--.\n\nReason:duplicate\n#12", a.CommentList[0].Text)
	require.Equal(t, "alice", a.CommentList[0].User)
	require.Equal(t, article.StatusSolved, a.CommentStatus)
	require.True(t, a.IsUnpublished())

	// a stored reason satisfies the guard
	err = f.svc.ProposeUpdate(ctx, "bob", a, Proposal{Version: intp(a.Version), Fields: map[string]string{"blog": blog.Trash}})
	require.NoError(t, err)
	require.Equal(t, blog.Trash, a.Blog)
	require.Len(t, a.CommentList, 2)
}

func TestProposeUpdate_AttachedCommentAndNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Title: "A", Blog: "WN1"})

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{
		Version:    intp(1),
		Fields:     map[string]string{"title": "B"},
		AddComment: "@bob please check",
	})
	require.NoError(t, err)
	require.Len(t, a.CommentList, 1)
	require.Equal(t, article.StatusOpen, a.CommentStatus)
	require.Equal(t, 0, a.CommentRead["alice"])
	require.Equal(t, article.MentionUser, a.CommentMention("bob", "DE", "EN"))

	// a failing notifier never fails the edit
	require.Equal(t, []string{"fields:alice", "comment:@bob please check"}, f.notes.events)
	require.Equal(t, "A", f.notes.before["title"])
}

func TestProposeUpdate_ExpandsCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expander.urls["https://t.co/abc"] = "https://osm.test/diary/1"
	a := f.stored(t, &article.Article{})

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"collection": " https://t.co/abc "}})
	require.NoError(t, err)
	require.Equal(t, "https://osm.test/diary/1", a.Collection)

	// text around the url is left alone
	err = f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(2), Fields: map[string]string{"collection": "see https://t.co/abc"}})
	require.NoError(t, err)
	require.Equal(t, "see https://t.co/abc", a.Collection)
}

func TestProposeUpdate_CollaboratorFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expander.err = errors.New("timeout")
	a := f.stored(t, &article.Article{Title: "A", Blog: "WN1"})
	before := testutil.ToFloat64(metrics.LinkExpansions.WithLabelValues("error"))

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{
		Version:    intp(1),
		Fields:     map[string]string{"title": "B", "collection": "https://t.co/abc"},
		AddComment: "moved",
	})
	require.ErrorIs(t, err, article.ErrCollaborator)
	var ce *article.CollaboratorError
	require.ErrorAs(t, err, &ce)
	require.EqualError(t, errors.Unwrap(err), "timeout")

	require.Equal(t, "A", a.Title)
	require.Empty(t, a.CommentList)
	require.Equal(t, 1, a.Version)
	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "A", got.Title)
	require.Empty(t, got.CommentList)
	require.Empty(t, f.records(t, a.ID))
	require.Empty(t, f.notes.events)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.LinkExpansions.WithLabelValues("error")))
}

func TestProposeUpdate_ContainerLookupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.blogs = failingBlogs{}
	a := f.stored(t, &article.Article{Blog: "WN1"})

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"title": "T"}})
	require.ErrorIs(t, err, article.ErrCollaborator)
	require.Empty(t, f.records(t, a.ID))
}

type failingBlogs struct{}

func (failingBlogs) FindByName(ctx context.Context, name string) (*blog.Blog, error) {
	return nil, errors.New("connection refused")
}

func TestProposeUpdate_LegacyCommentOpensThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{})

	require.NoError(t, f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"comment": "@DE translate?"}}))
	require.Equal(t, article.StatusOpen, a.CommentStatus)
	require.Equal(t, article.MentionLanguage, a.CommentMention("carol", "DE", "EN"))
	require.Len(t, f.records(t, a.ID), 2)
}

func TestProposeUpdate_NewArticleGetsID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := &article.Article{}

	require.NoError(t, f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(0), Fields: map[string]string{"title": "New"}}))
	require.NotZero(t, a.ID)
	require.Equal(t, 2, a.Version)
	recs := f.records(t, a.ID)
	require.Len(t, recs, 1)
	require.Equal(t, a.ID, recs[0].ObjectID)
}

func TestCreate_BareArticleThenEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, "alice", nil)
	require.NoError(t, err)
	require.NotZero(t, a.ID)
	require.Equal(t, 1, a.Version)
	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
	require.Empty(t, f.records(t, a.ID))

	require.NoError(t, f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"collection": "hello"}}))
	require.Equal(t, 2, a.Version)
	recs := f.records(t, a.ID)
	require.Len(t, recs, 1)
	require.Equal(t, "collection", recs[0].Property)
	require.Equal(t, "hello", recs[0].To)
}

type failingLog struct {
	*changes.MemoryLog
}

func (failingLog) Append(ctx context.Context, r *changes.Record) error {
	return errors.New("disk full")
}

func TestProposeUpdate_AuditFailureKeepsEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.changes = failingLog{f.log}
	a := f.stored(t, &article.Article{Title: "A", Blog: "WN1"})
	before := testutil.ToFloat64(metrics.Mutations.WithLabelValues("audit"))

	err := f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"title": "B"}})
	require.ErrorIs(t, err, article.ErrAuditIncomplete)
	require.NotErrorIs(t, err, article.ErrConflict)
	require.NotErrorIs(t, err, article.ErrValidation)
	require.ErrorContains(t, err, "disk full")
	var he article.HTTPError
	require.False(t, errors.As(err, &he))

	require.Equal(t, 2, a.Version)
	require.Equal(t, "B", a.Title)
	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)
	require.Equal(t, "B", got.Title)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.Mutations.WithLabelValues("audit")))
}

func TestLock_ClearedByEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Blog: "WN1"})

	require.NoError(t, f.svc.Lock(ctx, "alice", a))
	require.NotNil(t, a.Lock)
	require.Equal(t, "alice", a.Lock.User)
	require.Equal(t, 2, a.Version)

	// already locked
	require.NoError(t, f.svc.Lock(ctx, "bob", a))
	require.Equal(t, "alice", a.Lock.User)
	require.Equal(t, 2, a.Version)

	require.NoError(t, f.svc.ProposeUpdate(ctx, "bob", a, Proposal{Version: intp(2), Fields: map[string]string{"title": "T"}}))
	require.Nil(t, a.Lock)
	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, got.Lock)
}

func TestLock_ClosedContainer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.blogs.Save(ctx, &blog.Blog{Name: "WN0", Status: blog.StatusClosed}))
	a := f.stored(t, &article.Article{Blog: "WN0"})

	require.NoError(t, f.svc.Lock(ctx, "alice", a))
	require.Nil(t, a.Lock)
	require.Equal(t, 1, a.Version)

	f.svc.blogs = failingBlogs{}
	b := f.stored(t, &article.Article{Blog: "WN1"})
	require.ErrorIs(t, f.svc.Lock(ctx, "alice", b), article.ErrCollaborator)

	c := f.stored(t, &article.Article{Blog: blog.Future})
	require.NoError(t, f.svc.Lock(ctx, "alice", c))
	require.NotNil(t, c.Lock)
	require.NoError(t, f.svc.Unlock(ctx, c))
	require.Nil(t, c.Lock)
}

func TestVotesAndTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{})

	require.NoError(t, f.svc.SetVote(ctx, "alice", a, "pro"))
	require.NoError(t, f.svc.SetVote(ctx, "alice", a, "pro"))
	require.NoError(t, f.svc.SetVote(ctx, "bob", a, "pro"))
	require.Equal(t, []string{"alice", "bob"}, a.Votes["pro"])
	require.Equal(t, 3, a.Version)

	require.NoError(t, f.svc.UnsetVote(ctx, "alice", a, "pro"))
	require.NoError(t, f.svc.UnsetVote(ctx, "carol", a, "pro"))
	require.Equal(t, []string{"bob"}, a.Votes["pro"])
	require.Equal(t, 4, a.Version)

	require.NoError(t, f.svc.SetTag(ctx, a, "mapping"))
	require.NoError(t, f.svc.SetTag(ctx, a, "mapping"))
	require.Equal(t, []string{"mapping"}, a.Tags)
	require.NoError(t, f.svc.UnsetTag(ctx, a, "mapping"))
	require.Empty(t, a.Tags)
	require.Equal(t, 6, a.Version)
}

func TestCopyToBlogAndOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Title: "T", Blog: "WN1", CategoryEN: "Mapping", Fields: map[string]string{"markdownDE": "Text"}})

	c, err := f.svc.CopyToBlog(ctx, a, "WN2", []string{"DE", "EN"})
	require.NoError(t, err)
	require.NotZero(t, c.ID)
	require.Equal(t, map[string]int64{"WN2": c.ID}, a.CopyTo)

	stored, err := f.store.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "WN2", stored.Blog)
	require.Equal(t, "Mapping", stored.CategoryEN)
	require.Equal(t, a.ID, stored.OriginArticleID)
	require.Equal(t, map[string]string{"markdownDE": "Former Text:\n\nText"}, stored.Fields)

	_, err = f.svc.CopyToBlog(ctx, a, "WN2", []string{"DE"})
	require.ErrorIs(t, err, article.ErrValidation)

	origin, err := f.svc.LoadOrigin(ctx, stored)
	require.NoError(t, err)
	require.Equal(t, a.ID, origin.Article.ID)
	require.Equal(t, "WN1", origin.Blog.Name)

	none, err := f.svc.LoadOrigin(ctx, a)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestAddNotranslate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Fields: map[string]string{"markdownDE": "Hallo"}})

	require.NoError(t, f.svc.AddNotranslate(ctx, "alice", a, []string{"DE", "EN"}))
	require.Equal(t, article.NoTranslation, a.Fields["markdownEN"])
	_, ok := a.Fields["markdownES"]
	require.False(t, ok)
	require.Equal(t, "Hallo", a.Fields["markdownDE"])
	require.False(t, article.IsMarkdown(a.Fields["markdownEN"]))
}

func TestOrphanBlogs_CachedUntilCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stored(t, &article.Article{Blog: "WN1"})
	f.stored(t, &article.Article{Blog: "WN2"})
	a := f.stored(t, &article.Article{Blog: "WN1"})

	names, err := f.svc.OrphanBlogs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"WN2"}, names)

	f.stored(t, &article.Article{Blog: "WN3"})
	names, err = f.svc.OrphanBlogs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"WN2"}, names)

	require.NoError(t, f.svc.SetTag(ctx, a, "x"))
	names, err = f.svc.OrphanBlogs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"WN2", "WN3"}, names)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Blog: "WN1"})
	require.NoError(t, f.svc.ProposeUpdate(ctx, "alice", a, Proposal{Version: intp(1), Fields: map[string]string{"title": "T", "collection": "c"}}))

	list, err := f.svc.History(ctx, changes.Filter{User: "alice", Property: "title"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, article.Table, list[0].Table)
	require.Equal(t, "T", list[0].To)
}

func TestDerived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{})
	other := f.stored(t, &article.Article{})

	t1, t2, t3 := t0.Add(time.Hour), t0.Add(2*time.Hour), t0.Add(3*time.Hour)
	for _, r := range []*changes.Record{
		{Table: article.Table, ObjectID: a.ID, Property: "title", User: "alice", Timestamp: t1},
		{Table: article.Table, ObjectID: a.ID, Property: "title", User: "bob", Timestamp: t2},
		{Table: article.Table, ObjectID: a.ID, Property: "title", User: "alice", Timestamp: t3},
		{Table: article.Table, ObjectID: a.ID, Property: "collection", User: "carol", Timestamp: t1},
		{Table: article.Table, ObjectID: other.ID, Property: "title", User: "dave", Timestamp: t3},
	} {
		require.NoError(t, f.log.Append(ctx, r))
	}

	d, err := f.svc.Derived(ctx, a)
	require.NoError(t, err)
	want := &article.Derived{
		LastChange: map[string]time.Time{"title": t3, "collection": t1},
		Authors:    map[string][]string{"title": {"alice", "bob"}, "collection": {"carol"}},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Fatalf("derived mismatch (-want +got):\n%s", diff)
	}

	// memoized on the instance
	require.NoError(t, f.log.Append(ctx, &changes.Record{Table: article.Table, ObjectID: a.ID, Property: "blog", User: "eve", Timestamp: t3}))
	again, err := f.svc.Derived(ctx, a)
	require.NoError(t, err)
	require.Same(t, d, again)

	fresh, err := f.svc.Derived(ctx, &article.Article{})
	require.NoError(t, err)
	require.Empty(t, fresh.Authors)
}

func TestBacklinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.stored(t, &article.Article{Blog: "WN1", Collection: "see https://osm.test/a and https://osm.test/b https://flags.test/de.svg"})
	ref := f.stored(t, &article.Article{Blog: "WN2", Fields: map[string]string{"markdownEN": "via https://osm.test/a"}})
	f.stored(t, &article.Article{Blog: blog.Trash, Collection: "https://osm.test/a"})
	f.stored(t, &article.Article{Blog: "WN2", CategoryEN: article.CategoryUnpublished, Collection: "https://osm.test/b"})
	before := testutil.ToFloat64(metrics.BacklinkSearches)

	require.Equal(t, []string{"https://osm.test/a", "https://osm.test/b"}, f.svc.Links(a))

	b, err := f.svc.Backlinks(ctx, a)
	require.NoError(t, err)
	require.Equal(t, 1, b.Count)
	require.Len(t, b.Links["https://osm.test/a"], 1)
	require.Equal(t, ref.ID, b.Links["https://osm.test/a"][0].ID)
	require.Empty(t, b.Links["https://osm.test/b"])
	require.Contains(t, b.Links, "https://osm.test/b")
	require.Equal(t, before+2, testutil.ToFloat64(metrics.BacklinkSearches))

	again, err := f.svc.Backlinks(ctx, a)
	require.NoError(t, err)
	require.Same(t, b, again)

	events := f.stored(t, &article.Article{CategoryEN: "Upcoming Events", Collection: "https://osm.test/a"})
	empty, err := f.svc.Backlinks(ctx, events)
	require.NoError(t, err)
	require.Zero(t, empty.Count)
	require.Empty(t, empty.Links)
}

func TestCollectorQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.blogs.Save(ctx, &blog.Blog{Name: "WN2", Status: blog.StatusOpen, Exported: map[string]bool{"DE": true}}))
	require.NoError(t, f.blogs.Save(ctx, &blog.Blog{Name: "WN3", Status: blog.StatusClosed}))

	open, err := f.svc.Create(ctx, "alice", map[string]string{"blog": "WN1", "collection": "c1"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "alice", map[string]string{"blog": "WN1", "collection": "c2", "markdownDE": "Text"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "alice", map[string]string{"blog": "WN2", "collection": "c3"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "alice", map[string]string{"blog": "WN3", "collection": "c4"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "bob", map[string]string{"blog": "WN1", "collection": "c5"})
	require.NoError(t, err)

	empty, err := f.svc.EmptyUserCollectedArticles(ctx, "DE", "alice")
	require.NoError(t, err)
	require.Len(t, empty, 1)
	require.Equal(t, open.ID, empty[0].ID)

	edited, err := f.svc.UserEditedArticles(ctx, "WN1", "alice", "collection")
	require.NoError(t, err)
	require.Len(t, edited, 2)
	require.Less(t, edited[0].ID, edited[1].ID)
}
