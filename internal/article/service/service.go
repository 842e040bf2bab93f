package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/internal/blog"
	"github.com/osmbc/articles/internal/changes"
	"github.com/osmbc/articles/internal/linkexpand"
	"github.com/osmbc/articles/internal/notify"
	"github.com/osmbc/articles/pkg/logger"
)

// Searcher finds articles containing a phrase and keeps an index of
// committed articles current.
type Searcher interface {
	Search(ctx context.Context, text string) ([]*article.Article, error)
	Index(a *article.Article)
}

// Deps are the collaborators of the article service. Articles, Changes and
// Blogs are required; the rest may be nil.
type Deps struct {
	Articles article.Store
	Changes  changes.Log
	Blogs    blog.Finder
	Notifier notify.Notifier
	Expander linkexpand.Expander
	Search   Searcher
	Orphans  blog.OrphanCache

	// Languages are the configured content languages.
	Languages []string
	// Flags are decoration image URLs never reported as links.
	Flags []string
	// CategoryTranslation maps categoryEN to its label per language.
	CategoryTranslation map[string]map[string]string

	Now func() time.Time
}

// Service is the only write path for articles. Every mutation reads the
// latest persisted state, applies the change to a working copy and commits
// it with a compare-and-swap on version, so a rejected call leaves both the
// store and the caller's instance untouched.
type Service struct {
	articles     article.Store
	changes      changes.Log
	blogs        blog.Finder
	notifier     notify.Notifier
	expander     linkexpand.Expander
	search       Searcher
	orphans      blog.OrphanCache
	languages    []string
	flags        []string
	translations map[string]map[string]string
	now          func() time.Time
	log          *logger.Logger
}

func New(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		articles:     d.Articles,
		changes:      d.Changes,
		blogs:        d.Blogs,
		notifier:     d.Notifier,
		expander:     d.Expander,
		search:       d.Search,
		orphans:      d.Orphans,
		languages:    d.Languages,
		flags:        d.Flags,
		translations: d.CategoryTranslation,
		now:          now,
		log:          logger.Named("article"),
	}
}

func (s *Service) Languages() []string { return s.languages }

// Get loads an article together with its owning container.
func (s *Service) Get(ctx context.Context, id int64) (*article.Article, error) {
	a, err := s.articles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadContainer(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Create stores a new article carrying fields. The fields go through the
// regular update path so they are audited like any later edit. A bare
// article is stored at version 1. With an AuditError the article is
// returned along with the error.
func (s *Service) Create(ctx context.Context, actor string, fields map[string]string) (*article.Article, error) {
	a := &article.Article{}
	version := 0
	err := s.ProposeUpdate(ctx, actor, a, Proposal{Version: &version, Fields: fields})
	if err != nil && !errors.Is(err, article.ErrAuditIncomplete) {
		return nil, err
	}
	return a, err
}

// Links lists the outbound URLs of a.
func (s *Service) Links(a *article.Article) []string {
	return a.Links(s.languages, s.flags)
}

// Category returns the translated category label of a.
func (s *Service) Category(a *article.Article, lang string) string {
	return a.Category(lang, s.translations)
}

// History queries the change log.
func (s *Service) History(ctx context.Context, f changes.Filter) ([]*changes.Record, error) {
	if f.Table == "" {
		f.Table = article.Table
	}
	return s.changes.Find(ctx, f)
}

// loadContainer attaches the owning container unless one is already
// loaded. Virtual containers and unknown names attach nil.
func (s *Service) loadContainer(ctx context.Context, a *article.Article) error {
	if _, loaded := a.Container(); loaded {
		return nil
	}
	if a.Blog == "" || blog.IsVirtual(a.Blog) {
		a.SetContainer(nil)
		return nil
	}
	b, err := s.blogs.FindByName(ctx, a.Blog)
	if errors.Is(err, blog.ErrNotFound) {
		a.SetContainer(nil)
		return nil
	}
	if err != nil {
		s.log.Errorf("load container %q for article %d: %v", a.Blog, a.ID, err)
		return &article.CollaboratorError{Op: "load container", Err: err}
	}
	a.SetContainer(b)
	return nil
}

// working returns a private copy of the latest persisted state of a, or of
// a itself when it was never stored. A container already loaded on a is
// carried over.
func (s *Service) working(ctx context.Context, a *article.Article) (*article.Article, error) {
	var work *article.Article
	if a.ID == 0 {
		work = a.Clone()
	} else {
		latest, err := s.articles.Get(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		work = latest
	}
	if c, loaded := a.Container(); loaded && work.Blog == a.Blog {
		work.SetContainer(c)
	}
	return work, nil
}

// put persists work, translating a lost compare-and-swap into a
// ConflictError.
func (s *Service) put(ctx context.Context, work *article.Article) error {
	err := s.articles.Put(ctx, work)
	if errors.Is(err, article.ErrVersionConflict) {
		s.log.Infof("article %d: version mismatch on write", work.ID)
		return &article.ConflictError{Message: "version mismatch"}
	}
	return err
}

// modify runs fn on a working copy and commits the result when fn reports
// a change. fn must not have side effects outside work.
func (s *Service) modify(ctx context.Context, a *article.Article, fn func(work *article.Article) (bool, error)) (*article.Article, error) {
	work, err := s.working(ctx, a)
	if err != nil {
		return nil, err
	}
	changed, err := fn(work)
	if err != nil || !changed {
		return nil, err
	}
	if err := s.put(ctx, work); err != nil {
		return nil, err
	}
	return s.commit(ctx, a, work), nil
}

// commit publishes a persisted working copy: it replaces the caller's
// instance, drops the orphan cache and refreshes the search index. The
// returned snapshot is safe to hand to asynchronous consumers.
func (s *Service) commit(ctx context.Context, a, work *article.Article) *article.Article {
	*a = *work
	a.ResetCaches()
	if s.orphans != nil {
		if err := s.orphans.Invalidate(ctx); err != nil {
			s.log.Warnf("invalidate orphan blog cache: %v", err)
		}
	}
	snapshot := work.Clone()
	if s.search != nil {
		s.search.Index(snapshot)
	}
	return snapshot
}

// searchText runs a phrase search, through the index when there is one.
func (s *Service) searchText(ctx context.Context, text string) ([]*article.Article, error) {
	if s.search != nil {
		return s.search.Search(ctx, text)
	}
	return s.articles.FullTextSearch(ctx, text, article.Order{Field: article.FieldBlog, Desc: true})
}

// loadByIDs fetches articles in ascending id order, skipping ids that no
// longer exist.
func (s *Service) loadByIDs(ctx context.Context, ids map[int64]bool) ([]*article.Article, error) {
	sorted := make([]int64, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := []*article.Article{}
	for _, id := range sorted {
		a, err := s.articles.Get(ctx, id)
		if errors.Is(err, article.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
