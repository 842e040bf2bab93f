package handler

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/osmbc/articles/internal/article/service"
)

var datePrefix = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2})?)?$`)

type createRequest struct {
	Fields map[string]string `json:"fields"`
}

type patchRequest struct {
	Version    *int              `json:"version,omitempty"`
	Old        map[string]string `json:"old,omitempty"`
	Fields     map[string]string `json:"fields"`
	AddComment string            `json:"addComment,omitempty"`
}

func (r *patchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Fields, validation.When(r.AddComment == "", validation.Required.Error("fields or addComment is required"))),
		validation.Field(&r.Version, validation.When(r.Version != nil, validation.Min(0))),
	)
}

func (r *patchRequest) proposal() service.Proposal {
	return service.Proposal{Version: r.Version, Fields: r.Fields, Old: r.Old, AddComment: r.AddComment}
}

type commentRequest struct {
	Text string `json:"text"`
}

func (r *commentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Required),
	)
}

type readRequest struct {
	Index *int `json:"index"`
}

func (r *readRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Index, validation.NotNil, validation.Min(-1)),
	)
}

type copyRequest struct {
	Blog      string   `json:"blog"`
	Languages []string `json:"languages,omitempty"`
}

func (r *copyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Blog, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Languages, validation.Each(validation.Required)),
	)
}

type changesQuery struct {
	ObjectID  int64  `form:"oid"`
	User      string `form:"user"`
	Property  string `form:"property"`
	Blog      string `form:"blog"`
	Date      string `form:"date"`
	Ascending bool   `form:"asc"`
	Limit     int    `form:"limit"`
}

func (q *changesQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.ObjectID, validation.Min(int64(0))),
		validation.Field(&q.Date, validation.Match(datePrefix)),
		validation.Field(&q.Limit, validation.Min(0), validation.Max(1000)),
	)
}
