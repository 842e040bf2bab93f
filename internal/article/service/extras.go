package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/internal/blog"
)

const formerText = "Former Text:\n\n"

// Lock marks a as being edited by actor. An existing lock is kept. The lock
// is not taken when the container turns out to be closed.
func (s *Service) Lock(ctx context.Context, actor string, a *article.Article) error {
	_, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		if work.Lock != nil {
			return false, nil
		}
		if work.Blog != "" && !blog.IsVirtual(work.Blog) {
			b, err := s.blogs.FindByName(ctx, work.Blog)
			switch {
			case errors.Is(err, blog.ErrNotFound):
			case err != nil:
				return false, &article.CollaboratorError{Op: "load container", Err: err}
			case b.Status == blog.StatusClosed:
				return false, nil
			}
		}
		work.Lock = &article.Lock{User: actor, Timestamp: s.now()}
		return true, nil
	})
	return err
}

func (s *Service) Unlock(ctx context.Context, a *article.Article) error {
	_, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		if work.Lock == nil {
			return false, nil
		}
		work.Lock = nil
		return true, nil
	})
	return err
}

// SetVote adds actor to the voters of tag.
func (s *Service) SetVote(ctx context.Context, actor string, a *article.Article, tag string) error {
	_, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		if slices.Contains(work.Votes[tag], actor) {
			return false, nil
		}
		if work.Votes == nil {
			work.Votes = map[string][]string{}
		}
		work.Votes[tag] = append(work.Votes[tag], actor)
		return true, nil
	})
	return err
}

func (s *Service) UnsetVote(ctx context.Context, actor string, a *article.Article, tag string) error {
	_, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		i := slices.Index(work.Votes[tag], actor)
		if i < 0 {
			return false, nil
		}
		work.Votes[tag] = slices.Delete(work.Votes[tag], i, i+1)
		return true, nil
	})
	return err
}

func (s *Service) SetTag(ctx context.Context, a *article.Article, tag string) error {
	_, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		if slices.Contains(work.Tags, tag) {
			return false, nil
		}
		work.Tags = append(work.Tags, tag)
		return true, nil
	})
	return err
}

func (s *Service) UnsetTag(ctx context.Context, a *article.Article, tag string) error {
	_, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		i := slices.Index(work.Tags, tag)
		if i < 0 {
			return false, nil
		}
		work.Tags = slices.Delete(work.Tags, i, i+1)
		return true, nil
	})
	return err
}

// CopyToBlog creates a copy of a in blogName and remembers the copy's id on
// a. Texts of languages are carried over marked as former text.
func (s *Service) CopyToBlog(ctx context.Context, a *article.Article, blogName string, languages []string) (*article.Article, error) {
	if a.ID == 0 {
		return nil, &article.ValidationError{Message: "article must be saved before copying"}
	}
	var copied *article.Article
	_, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		if id := work.CopyTo[blogName]; id != 0 {
			return false, &article.ValidationError{Message: fmt.Sprintf("article %q already copied to %q, id %d", work.Title, blogName, id)}
		}
		c := &article.Article{
			Title:           work.Title,
			Collection:      work.Collection,
			CategoryEN:      work.CategoryEN,
			Blog:            blogName,
			OriginArticleID: work.ID,
		}
		for _, l := range languages {
			if text := work.Field(article.MarkdownField(l)); text != "" {
				c.SetField(article.MarkdownField(l), formerText+text)
			}
		}
		if err := s.articles.Put(ctx, c); err != nil {
			return false, err
		}
		if work.CopyTo == nil {
			work.CopyTo = map[string]int64{}
		}
		work.CopyTo[blogName] = c.ID
		copied = c
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.Index(copied.Clone())
	}
	return copied, nil
}

// AddNotranslate marks every shown language without a text as needing no
// translation. It is checked against the version a was read at.
func (s *Service) AddNotranslate(ctx context.Context, actor string, a *article.Article, shown []string) error {
	fields := map[string]string{}
	for _, l := range s.languages {
		if !slices.Contains(shown, l) {
			continue
		}
		if a.Field(article.MarkdownField(l)) == "" {
			fields[article.MarkdownField(l)] = article.NoTranslation
		}
	}
	if len(fields) == 0 {
		return nil
	}
	version := a.Version
	return s.ProposeUpdate(ctx, actor, a, Proposal{Version: &version, Fields: fields})
}
