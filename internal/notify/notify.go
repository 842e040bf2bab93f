package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/pkg/logger"
)

// Notifier receives article events. Delivery (mail, chat) happens behind
// it; callers never fail because of it.
type Notifier interface {
	FieldsChanged(ctx context.Context, actor string, before *article.Article, delta map[string]string) error
	CommentAdded(ctx context.Context, actor string, a *article.Article, text string) error
	CommentEdited(ctx context.Context, actor string, a *article.Article, index int, text string) error
}

// LogNotifier writes every event to the process log.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Named("notify")}
}

func (n *LogNotifier) FieldsChanged(ctx context.Context, actor string, before *article.Article, delta map[string]string) error {
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	n.log.Infof("article %d changed by %s: %v", before.ID, actor, keys)
	return nil
}

func (n *LogNotifier) CommentAdded(ctx context.Context, actor string, a *article.Article, text string) error {
	n.log.Infof("article %d: comment added by %s", a.ID, actor)
	return nil
}

func (n *LogNotifier) CommentEdited(ctx context.Context, actor string, a *article.Article, index int, text string) error {
	n.log.Infof("article %d: comment %d edited by %s", a.ID, index, actor)
	return nil
}

// Multi fans an event out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) FieldsChanged(ctx context.Context, actor string, before *article.Article, delta map[string]string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.FieldsChanged(ctx, actor, before, delta))
	}
	return errors.Join(errs...)
}

func (m Multi) CommentAdded(ctx context.Context, actor string, a *article.Article, text string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.CommentAdded(ctx, actor, a, text))
	}
	return errors.Join(errs...)
}

func (m Multi) CommentEdited(ctx context.Context, actor string, a *article.Article, index int, text string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.CommentEdited(ctx, actor, a, index, text))
	}
	return errors.Join(errs...)
}

// Async dispatches every event on its own goroutine and only logs failures.
// Its methods always return nil. Wait blocks until in-flight events are done.
type Async struct {
	next    Notifier
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup
}

func NewAsync(next Notifier, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{next: next, timeout: timeout, log: logger.Named("notify")}
}

func (a *Async) run(event string, fn func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.log.Warnf("%s notification failed: %v", event, err)
		}
	}()
}

func (a *Async) FieldsChanged(ctx context.Context, actor string, before *article.Article, delta map[string]string) error {
	a.run("fields", func(ctx context.Context) error {
		return a.next.FieldsChanged(ctx, actor, before, delta)
	})
	return nil
}

func (a *Async) CommentAdded(ctx context.Context, actor string, art *article.Article, text string) error {
	a.run("comment", func(ctx context.Context) error {
		return a.next.CommentAdded(ctx, actor, art, text)
	})
	return nil
}

func (a *Async) CommentEdited(ctx context.Context, actor string, art *article.Article, index int, text string) error {
	a.run("comment edit", func(ctx context.Context) error {
		return a.next.CommentEdited(ctx, actor, art, index, text)
	})
	return nil
}

func (a *Async) Wait() {
	a.wg.Wait()
}
