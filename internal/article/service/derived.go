package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/internal/blog"
	"github.com/osmbc/articles/internal/changes"
	"github.com/osmbc/articles/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const backlinkConcurrency = 4

// Derived reconstructs per-field last change time and authors from the
// change log. The result is memoized on a.
func (s *Service) Derived(ctx context.Context, a *article.Article) (*article.Derived, error) {
	if d := a.CachedDerived(); d != nil {
		return d, nil
	}
	d := &article.Derived{
		LastChange: map[string]time.Time{},
		Authors:    map[string][]string{},
	}
	if a.ID != 0 {
		records, err := s.changes.Find(ctx, changes.Filter{Table: article.Table, ObjectID: a.ID})
		if err != nil {
			return nil, err
		}
		seen := map[string]map[string]bool{}
		for _, r := range records {
			if seen[r.Property] == nil {
				seen[r.Property] = map[string]bool{}
			}
			if !seen[r.Property][r.User] {
				seen[r.Property][r.User] = true
				d.Authors[r.Property] = append(d.Authors[r.Property], r.User)
			}
			if last, ok := d.LastChange[r.Property]; !ok || r.Timestamp.After(last) {
				d.LastChange[r.Property] = r.Timestamp
			}
		}
	}
	a.SetDerived(d)
	return d, nil
}

// Backlinks finds, for every link of a, the other live articles that
// mention the same URL. Recurring sections link to too many unrelated
// articles and get an empty result. The result is memoized on a.
func (s *Service) Backlinks(ctx context.Context, a *article.Article) (*article.Backlinks, error) {
	if b := a.CachedBacklinks(); b != nil {
		return b, nil
	}
	result := &article.Backlinks{Links: map[string][]*article.Article{}}
	if article.ExcludedBacklinkCategories[a.CategoryEN] {
		a.SetBacklinks(result)
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backlinkConcurrency)
	for _, link := range s.Links(a) {
		g.Go(func() error {
			metrics.BacklinkSearches.Inc()
			hits, err := s.searchText(gctx, link)
			if err != nil {
				return err
			}
			refs := make([]*article.Article, 0, len(hits))
			for _, h := range hits {
				if h.ID == a.ID || h.IsUnpublished() {
					continue
				}
				refs = append(refs, h)
			}
			mu.Lock()
			result.Links[link] = refs
			result.Count += len(refs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	a.SetBacklinks(result)
	return result, nil
}

// LoadOrigin loads the article a was copied from, with its container.
// It returns nil when a is not a copy.
func (s *Service) LoadOrigin(ctx context.Context, a *article.Article) (*article.Origin, error) {
	if o := a.CachedOrigin(); o != nil {
		return o, nil
	}
	if a.OriginArticleID == 0 {
		return nil, nil
	}
	src, err := s.articles.Get(ctx, a.OriginArticleID)
	if err != nil {
		return nil, err
	}
	o := &article.Origin{Article: src}
	b, err := s.blogs.FindByName(ctx, src.Blog)
	switch {
	case err == nil:
		o.Blog = b
	case !errors.Is(err, blog.ErrNotFound):
		return nil, &article.CollaboratorError{Op: "load origin container", Err: err}
	}
	a.SetOrigin(o)
	return o, nil
}

// OrphanBlogs lists the container names referenced by articles that have no
// container record, sorted. The list is cached until the next commit.
func (s *Service) OrphanBlogs(ctx context.Context) ([]string, error) {
	if s.orphans != nil {
		names, ok, err := s.orphans.Get(ctx)
		if err != nil {
			s.log.Warnf("read orphan blog cache: %v", err)
		} else if ok {
			return names, nil
		}
	}
	names, err := s.articles.Distinct(ctx, article.FieldBlog)
	if err != nil {
		return nil, err
	}
	orphans := []string{}
	for _, name := range names {
		_, err := s.blogs.FindByName(ctx, name)
		if errors.Is(err, blog.ErrNotFound) {
			orphans = append(orphans, name)
			continue
		}
		if err != nil {
			return nil, &article.CollaboratorError{Op: "load container", Err: err}
		}
	}
	sort.Strings(orphans)
	if s.orphans != nil {
		if err := s.orphans.Set(ctx, orphans); err != nil {
			s.log.Warnf("write orphan blog cache: %v", err)
		}
	}
	return orphans, nil
}

// UserEditedArticles returns the articles of blogName whose field was
// changed by user.
func (s *Service) UserEditedArticles(ctx context.Context, blogName, user, field string) ([]*article.Article, error) {
	records, err := s.changes.Find(ctx, changes.Filter{Table: article.Table, Blog: blogName, User: user, Property: field})
	if err != nil {
		return nil, err
	}
	ids := map[int64]bool{}
	for _, r := range records {
		ids[r.ObjectID] = true
	}
	return s.loadByIDs(ctx, ids)
}

// EmptyUserCollectedArticles returns the live articles user collected that
// still lack a text in lang while their container is open for lang.
func (s *Service) EmptyUserCollectedArticles(ctx context.Context, lang, user string) ([]*article.Article, error) {
	records, err := s.changes.Find(ctx, changes.Filter{Table: article.Table, User: user, Property: article.FieldCollection})
	if err != nil {
		return nil, err
	}
	ids := map[int64]bool{}
	for _, r := range records {
		ids[r.ObjectID] = true
	}
	candidates, err := s.loadByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := []*article.Article{}
	for _, a := range candidates {
		if a.IsUnpublished() || a.Field(article.MarkdownField(lang)) != "" {
			continue
		}
		b, err := s.blogs.FindByName(ctx, a.Blog)
		if errors.Is(err, blog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &article.CollaboratorError{Op: "load container", Err: err}
		}
		if b.Status == blog.StatusClosed || b.IsExported(lang) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
