package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/internal/blog"
	"github.com/osmbc/articles/internal/changes"
	"github.com/osmbc/articles/pkg/metrics"
)

// Proposal is a set of field edits. With Version set the whole article is
// checked against that version; otherwise Old carries, per edited field,
// the value the caller saw before editing.
type Proposal struct {
	Version    *int
	Fields     map[string]string
	Old        map[string]string
	AddComment string
}

// mutation is the state threaded through the steps of ProposeUpdate.
type mutation struct {
	caller   *article.Article
	actor    string
	now      time.Time
	proposal Proposal
	fields   map[string]string
	work     *article.Article
	before   *article.Article
	comments []string
	records  []*changes.Record
	inserted bool
	unlocked bool
}

// changed reports whether the steps left anything to write.
func (m *mutation) changed() bool {
	return len(m.fields) > 0 || len(m.comments) > 0 || m.unlocked
}

// ProposeUpdate validates p against the latest stored state of a and, when
// it is not stale, applies and persists it. On success a holds the
// committed state. A proposal that changes nothing writes nothing and
// leaves the version alone. On error no field edit, comment or change
// record is stored; only a new article keeps the id its first insert
// obtained. An error matching article.ErrAuditIncomplete means the edit
// was committed but some change records were lost.
func (s *Service) ProposeUpdate(ctx context.Context, actor string, a *article.Article, p Proposal) (err error) {
	defer func() { metrics.Mutations.WithLabelValues(outcome(err)).Inc() }()

	work, err := s.working(ctx, a)
	if err != nil {
		return err
	}
	m := &mutation{caller: a, actor: actor, now: s.now(), proposal: p, work: work, fields: make(map[string]string, len(p.Fields))}
	for k, v := range p.Fields {
		m.fields[k] = v
	}

	steps := []func(context.Context, *mutation) error{
		s.checkStale,
		s.openLegacyComment,
		s.guardUnpublish,
		s.ensurePersisted,
		s.attachContainer,
		s.attachComment,
		s.commentUnpublish,
		s.expandCollection,
		s.clearLock,
		s.elideNoops,
		s.recordChanges,
		s.applyFields,
	}
	for _, step := range steps {
		if err := step(ctx, m); err != nil {
			if errors.Is(err, article.ErrCollaborator) {
				s.log.Errorf("article %d: %v", work.ID, err)
			}
			return err
		}
	}
	if !m.changed() {
		if m.inserted {
			s.commit(ctx, a, work)
		}
		return nil
	}
	if err := s.put(ctx, work); err != nil {
		return err
	}
	return s.finish(ctx, a, m)
}

func (s *Service) checkStale(_ context.Context, m *mutation) error {
	if m.proposal.Version != nil {
		if *m.proposal.Version != m.work.Version {
			return &article.ConflictError{Message: "version mismatch"}
		}
		return nil
	}
	for _, k := range sortedKeys(m.fields) {
		v := m.fields[k]
		old, ok := m.proposal.Old[k]
		if ok && old == v {
			delete(m.fields, k)
			continue
		}
		if !ok {
			return &article.ValidationError{Message: fmt.Sprintf("missing baseline for field %s", k)}
		}
		cur, present := m.work.Lookup(k)
		if (present && cur != old) || (!present && old != "") {
			return &article.ConflictError{Message: fmt.Sprintf("field %s already changed", k), Field: k}
		}
	}
	return nil
}

// openLegacyComment opens the thread when the single legacy comment is set
// on an article without a thread status.
func (s *Service) openLegacyComment(_ context.Context, m *mutation) error {
	if m.fields[article.FieldComment] != "" && m.work.CommentStatus == "" {
		if _, set := m.fields[article.FieldCommentStatus]; !set {
			m.fields[article.FieldCommentStatus] = article.StatusOpen
		}
	}
	return nil
}

func (m *mutation) unpublishing() bool {
	return strings.TrimSpace(m.fields[article.FieldCategory]) == article.CategoryUnpublished ||
		blog.IsTrash(strings.TrimSpace(m.fields[article.FieldBlog]))
}

func (m *mutation) unpublishReason() string {
	if r := strings.TrimSpace(m.fields[article.FieldUnpublishReason]); r != "" {
		return r
	}
	return strings.TrimSpace(m.work.UnpublishReason)
}

func (s *Service) guardUnpublish(_ context.Context, m *mutation) error {
	if m.unpublishing() && m.unpublishReason() == "" {
		return &article.ValidationError{Message: "missing unpublish reason"}
	}
	return nil
}

// ensurePersisted stores a new article as it was handed in so the change
// records have an id to refer to. The caller learns the id even if a later
// step fails.
func (s *Service) ensurePersisted(ctx context.Context, m *mutation) error {
	if m.work.ID != 0 {
		return nil
	}
	if err := s.articles.Put(ctx, m.work); err != nil {
		return err
	}
	m.caller.ID, m.caller.Version = m.work.ID, m.work.Version
	m.inserted = true
	return nil
}

func (s *Service) attachContainer(ctx context.Context, m *mutation) error {
	return s.loadContainer(ctx, m.work)
}

func (s *Service) attachComment(_ context.Context, m *mutation) error {
	text := m.proposal.AddComment
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := m.work.AddComment(m.actor, text, m.now); err != nil {
		return err
	}
	m.comments = append(m.comments, text)
	return nil
}

func (s *Service) commentUnpublish(_ context.Context, m *mutation) error {
	if !m.unpublishing() {
		return nil
	}
	text := "#solved because set to " + article.CategoryUnpublished + ".\n\nReason:" + m.unpublishReason()
	ref := strings.TrimSpace(m.fields[article.FieldUnpublishReference])
	if ref == "" {
		ref = m.work.UnpublishReference
	}
	if ref != "" {
		text += "\n" + ref
	}
	if err := m.work.AddComment(m.actor, text, m.now); err != nil {
		return err
	}
	m.work.CommentStatus = article.StatusSolved
	m.comments = append(m.comments, text)
	return nil
}

func (s *Service) expandCollection(ctx context.Context, m *mutation) error {
	v, ok := m.fields[article.FieldCollection]
	if !ok || s.expander == nil || !article.IsSingleURL(v) {
		return nil
	}
	expanded, err := s.expander.Expand(ctx, strings.TrimSpace(v))
	if err != nil {
		metrics.LinkExpansions.WithLabelValues("error").Inc()
		return &article.CollaboratorError{Op: "expand collection url", Err: err}
	}
	metrics.LinkExpansions.WithLabelValues("ok").Inc()
	m.fields[article.FieldCollection] = expanded
	return nil
}

func (s *Service) clearLock(_ context.Context, m *mutation) error {
	m.unlocked = m.work.Lock != nil
	m.work.Lock = nil
	return nil
}

// elideNoops trims every value and drops reserved names and values that
// would not change the stored state.
func (s *Service) elideNoops(_ context.Context, m *mutation) error {
	for k, v := range m.fields {
		if article.IsReserved(k) {
			s.log.Warnf("article %d: not storing value for reserved name %q", m.work.ID, k)
			delete(m.fields, k)
			continue
		}
		v = strings.TrimSpace(v)
		cur, present := m.work.Lookup(k)
		if v == cur || (v == "" && !present) {
			delete(m.fields, k)
			continue
		}
		m.fields[k] = v
	}
	return nil
}

// recordChanges builds one change record per remaining field from the
// state before the fields are applied. Records carry the container the
// article ends up in. They are appended once the write succeeded.
func (s *Service) recordChanges(_ context.Context, m *mutation) error {
	m.before = m.work.Clone()
	container := m.before.Blog
	if b, ok := m.fields[article.FieldBlog]; ok {
		container = b
	}
	for _, k := range sortedKeys(m.fields) {
		m.records = append(m.records, &changes.Record{
			Table:     article.Table,
			ObjectID:  m.work.ID,
			Blog:      container,
			Property:  k,
			From:      m.before.Field(k),
			To:        m.fields[k],
			User:      m.actor,
			Timestamp: m.now,
		})
	}
	return nil
}

func (s *Service) applyFields(_ context.Context, m *mutation) error {
	for _, k := range sortedKeys(m.fields) {
		m.work.SetField(k, m.fields[k])
	}
	return nil
}

// finish runs everything that follows a successful write. Audit append
// failures are reported as an AuditError; notification failures are only
// logged.
func (s *Service) finish(ctx context.Context, a *article.Article, m *mutation) error {
	snapshot := s.commit(ctx, a, m.work)

	var errs []error
	for _, r := range m.records {
		if err := s.changes.Append(ctx, r); err != nil {
			s.log.Errorf("article %d: append change of %s: %v", m.work.ID, r.Property, err)
			errs = append(errs, err)
		}
	}

	if s.notifier != nil {
		if len(m.fields) > 0 {
			if err := s.notifier.FieldsChanged(ctx, m.actor, m.before, m.fields); err != nil {
				s.log.Warnf("article %d: notify field change: %v", m.work.ID, err)
			}
		}
		for _, text := range m.comments {
			metrics.Comments.WithLabelValues("add").Inc()
			if err := s.notifier.CommentAdded(ctx, m.actor, snapshot, text); err != nil {
				s.log.Warnf("article %d: notify comment: %v", m.work.ID, err)
			}
		}
	}
	if len(errs) > 0 {
		return &article.AuditError{Err: errors.Join(errs...)}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, article.ErrAuditIncomplete):
		return "audit"
	case errors.Is(err, article.ErrConflict):
		return "conflict"
	case errors.Is(err, article.ErrValidation), errors.Is(err, article.ErrForbidden):
		return "validation"
	case errors.Is(err, article.ErrCollaborator):
		return "collaborator"
	}
	return "error"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
