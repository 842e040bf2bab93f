package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/osmbc/articles/internal/article"
	"github.com/redis/go-redis/v9"
)

// Event is the JSON payload published for every article event.
type Event struct {
	Type      string            `json:"type"`
	Actor     string            `json:"actor"`
	ArticleID int64             `json:"articleId"`
	Blog      string            `json:"blog,omitempty"`
	Title     string            `json:"title"`
	Fields    map[string]string `json:"fields,omitempty"`
	Index     *int              `json:"index,omitempty"`
	Text      string            `json:"text,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

const (
	EventFieldsChanged = "fieldsChanged"
	EventCommentAdded  = "commentAdded"
	EventCommentEdited = "commentEdited"
)

// RedisNotifier publishes events on a Redis channel for mail and chat
// workers to pick up.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	now     func() time.Time
}

// NewRedisNotifier creates a publisher. Channel may be empty.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "osmbc:article-events"
	}
	return &RedisNotifier{client: client, channel: channel, now: time.Now}
}

func (r *RedisNotifier) publish(ctx context.Context, e Event) error {
	e.Timestamp = r.now().UTC()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

func (r *RedisNotifier) FieldsChanged(ctx context.Context, actor string, before *article.Article, delta map[string]string) error {
	return r.publish(ctx, Event{
		Type:      EventFieldsChanged,
		Actor:     actor,
		ArticleID: before.ID,
		Blog:      before.Blog,
		Title:     before.DisplayTitle(0),
		Fields:    delta,
	})
}

func (r *RedisNotifier) CommentAdded(ctx context.Context, actor string, a *article.Article, text string) error {
	return r.publish(ctx, Event{
		Type:      EventCommentAdded,
		Actor:     actor,
		ArticleID: a.ID,
		Blog:      a.Blog,
		Title:     a.DisplayTitle(0),
		Text:      text,
	})
}

func (r *RedisNotifier) CommentEdited(ctx context.Context, actor string, a *article.Article, index int, text string) error {
	return r.publish(ctx, Event{
		Type:      EventCommentEdited,
		Actor:     actor,
		ArticleID: a.ID,
		Blog:      a.Blog,
		Title:     a.DisplayTitle(0),
		Index:     &index,
		Text:      text,
	})
}
