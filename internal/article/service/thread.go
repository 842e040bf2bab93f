package service

import (
	"context"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/pkg/metrics"
)

// AddComment appends a comment by actor to the thread of a and persists it.
func (s *Service) AddComment(ctx context.Context, actor string, a *article.Article, text string) error {
	snapshot, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		return true, work.AddComment(actor, text, s.now())
	})
	if err != nil {
		return err
	}
	metrics.Comments.WithLabelValues("add").Inc()
	if s.notifier != nil {
		if err := s.notifier.CommentAdded(ctx, actor, snapshot, text); err != nil {
			s.log.Warnf("article %d: notify comment: %v", snapshot.ID, err)
		}
	}
	return nil
}

// EditComment replaces the text of comment index. Only its author may do so.
func (s *Service) EditComment(ctx context.Context, actor string, a *article.Article, index int, text string) error {
	snapshot, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		return true, work.EditComment(actor, index, text, s.now())
	})
	if err != nil {
		return err
	}
	metrics.Comments.WithLabelValues("edit").Inc()
	if s.notifier != nil {
		if err := s.notifier.CommentEdited(ctx, actor, snapshot, index, text); err != nil {
			s.log.Warnf("article %d: notify comment edit: %v", snapshot.ID, err)
		}
	}
	return nil
}

// MarkCommentRead stores how far actor has read the thread. Articles
// without comments are left alone.
func (s *Service) MarkCommentRead(ctx context.Context, actor string, a *article.Article, index int) error {
	snapshot, err := s.modify(ctx, a, func(work *article.Article) (bool, error) {
		if prev, ok := work.CommentRead[actor]; ok && prev == min(index, len(work.CommentList)-1) {
			return false, nil
		}
		return work.MarkCommentRead(actor, index)
	})
	if err == nil && snapshot != nil {
		metrics.Comments.WithLabelValues("read").Inc()
	}
	return err
}
