package search

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/pkg/logger"
)

// Service answers link lookups from Meilisearch when it is healthy and
// from the article store otherwise.
type Service struct {
	meili *Meili
	store article.Store
	log   *logger.Logger
}

// NewService creates the facade. meili may be nil.
func NewService(meili *Meili, store article.Store) *Service {
	return &Service{meili: meili, store: store, log: logger.Named("search")}
}

// Search returns the articles containing text, ordered by blog descending.
func (s *Service) Search(ctx context.Context, text string) ([]*article.Article, error) {
	if s.meili != nil && s.meili.Healthy() {
		ids, err := s.meili.SearchIDs(text, 0)
		if err == nil {
			return s.load(ctx, ids, text)
		}
		s.log.Warnf("meilisearch error, falling back to store search: %v", err)
	}
	return s.store.FullTextSearch(ctx, text, article.Order{Field: article.FieldBlog, Desc: true})
}

// load fetches the hits from the store, which stays the source of truth, and
// drops hits whose stored text no longer contains the phrase.
func (s *Service) load(ctx context.Context, ids []int64, text string) ([]*article.Article, error) {
	out := []*article.Article{}
	for _, id := range ids {
		a, err := s.store.Get(ctx, id)
		if errors.Is(err, article.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if containsPhrase(a, text) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Blog > out[j].Blog })
	return out, nil
}

func containsPhrase(a *article.Article, text string) bool {
	needle := strings.ToLower(text)
	values := []string{a.Title, a.Collection}
	for _, f := range a.MarkdownFields() {
		values = append(values, a.Fields[f])
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// Index pushes a committed article to the index without blocking. Retired
// articles are removed so link lookups stop returning them.
func (s *Service) Index(a *article.Article) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	snapshot := a.Clone()
	go func() {
		if snapshot.IsUnpublished() {
			if err := s.meili.DeleteArticle(snapshot.ID); err != nil {
				s.log.Warnf("drop article %d from index: %v", snapshot.ID, err)
			}
			return
		}
		if err := s.meili.IndexArticle(snapshot); err != nil {
			s.log.Warnf("index article %d: %v", snapshot.ID, err)
		}
	}()
}
