package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/pkg/logger"
)

const idxArticles = "osmbc_articles"

// Meili indexes articles in Meilisearch for link lookups.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	log     *logger.Logger
}

// NewMeili creates a client, configures the index when reachable and keeps
// polling health in the background.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		log:    logger.Named("search"),
	}
	if _, err := m.client.Health(); err != nil {
		m.log.Warnf("meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxArticles, PrimaryKey: "id"}); err != nil {
		m.log.Debugf("create index %s (may already exist): %v", idxArticles, err)
	}
	index := m.client.Index(idxArticles)
	filterable := []interface{}{"blog", "categoryEN"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warnf("update filterable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				m.log.Infof("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchIDs runs a phrase query and returns the ids of matching articles.
func (m *Meili) SearchIDs(text string, limit int64) ([]int64, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 200
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:             idxArticles,
			Query:                strconv.Quote(text),
			Limit:                limit,
			AttributesToRetrieve: []string{"id"},
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}
	var ids []int64
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			raw, ok := hit["id"]
			if !ok {
				continue
			}
			var id int64
			if err := json.Unmarshal(raw, &id); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// record is the indexed shape: the stored article attributes that carry
// text.
func record(a *article.Article) map[string]interface{} {
	doc := map[string]interface{}{
		"id":         a.ID,
		"blog":       a.Blog,
		"categoryEN": a.CategoryEN,
		"title":      a.Title,
		"collection": a.Collection,
	}
	for _, f := range a.MarkdownFields() {
		doc[f] = a.Fields[f]
	}
	return doc
}

func (m *Meili) IndexArticle(a *article.Article) error {
	_, err := m.client.Index(idxArticles).AddDocuments([]map[string]interface{}{record(a)}, nil)
	return err
}

func (m *Meili) DeleteArticle(id int64) error {
	_, err := m.client.Index(idxArticles).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}
