package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/internal/article/service"
	"github.com/osmbc/articles/internal/changes"
	"github.com/osmbc/articles/pkg/logger"
	"github.com/osmbc/articles/pkg/middleware"
)

type articleHandler struct {
	svc *service.Service
	log *logger.Logger
}

// RegisterArticleRoutes mounts the article API on r. The acting user is
// taken from one of the auth middlewares, which must run before.
func RegisterArticleRoutes(r gin.IRouter, svc *service.Service) {
	h := &articleHandler{svc: svc, log: logger.Named("http")}

	r.POST("/api/articles", h.create)
	r.GET("/api/articles/:id", h.get)
	r.PATCH("/api/articles/:id", h.patch)

	r.POST("/api/articles/:id/comments", h.addComment)
	r.PUT("/api/articles/:id/comments/:index", h.editComment)
	r.POST("/api/articles/:id/comments/read", h.markRead)

	r.POST("/api/articles/:id/lock", h.lock)
	r.DELETE("/api/articles/:id/lock", h.unlock)

	r.GET("/api/articles/:id/links", h.links)
	r.GET("/api/articles/:id/backlinks", h.backlinks)

	r.POST("/api/articles/:id/votes/:tag", h.vote(true))
	r.DELETE("/api/articles/:id/votes/:tag", h.vote(false))
	r.POST("/api/articles/:id/tags/:tag", h.tag(true))
	r.DELETE("/api/articles/:id/tags/:tag", h.tag(false))

	r.POST("/api/articles/:id/copy", h.copy)

	r.GET("/api/changes", h.history)
	r.GET("/api/blogs/orphans", h.orphans)
}

func (h *articleHandler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), req.Fields)
	if err != nil && !h.committed(c, err) {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *articleHandler) get(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	if c.Query("derived") != "1" {
		c.JSON(http.StatusOK, a)
		return
	}
	ctx := c.Request.Context()
	derived, err := h.svc.Derived(ctx, a)
	if err != nil {
		h.writeError(c, err)
		return
	}
	origin, err := h.svc.LoadOrigin(ctx, a)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"article": a, "derived": derived, "origin": origin})
}

func (h *articleHandler) patch(c *gin.Context) {
	var req patchRequest
	if !bind(c, &req) {
		return
	}
	a, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.svc.ProposeUpdate(c.Request.Context(), middleware.Actor(c), a, req.proposal()); err != nil && !h.committed(c, err) {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *articleHandler) addComment(c *gin.Context) {
	var req commentRequest
	if !bind(c, &req) {
		return
	}
	a, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.svc.AddComment(c.Request.Context(), middleware.Actor(c), a, req.Text); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *articleHandler) editComment(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment index"})
		return
	}
	var req commentRequest
	if !bind(c, &req) {
		return
	}
	a, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.svc.EditComment(c.Request.Context(), middleware.Actor(c), a, index, req.Text); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *articleHandler) markRead(c *gin.Context) {
	var req readRequest
	if !bind(c, &req) {
		return
	}
	a, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.svc.MarkCommentRead(c.Request.Context(), middleware.Actor(c), a, *req.Index); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *articleHandler) lock(c *gin.Context) {
	h.mutate(c, func(a *article.Article) error {
		return h.svc.Lock(c.Request.Context(), middleware.Actor(c), a)
	})
}

func (h *articleHandler) unlock(c *gin.Context) {
	h.mutate(c, func(a *article.Article) error {
		return h.svc.Unlock(c.Request.Context(), a)
	})
}

func (h *articleHandler) vote(set bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tag := c.Param("tag")
		h.mutate(c, func(a *article.Article) error {
			if set {
				return h.svc.SetVote(c.Request.Context(), middleware.Actor(c), a, tag)
			}
			return h.svc.UnsetVote(c.Request.Context(), middleware.Actor(c), a, tag)
		})
	}
}

func (h *articleHandler) tag(set bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tag := c.Param("tag")
		h.mutate(c, func(a *article.Article) error {
			if set {
				return h.svc.SetTag(c.Request.Context(), a, tag)
			}
			return h.svc.UnsetTag(c.Request.Context(), a, tag)
		})
	}
}

func (h *articleHandler) links(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": h.svc.Links(a)})
}

func (h *articleHandler) backlinks(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	b, err := h.svc.Backlinks(c.Request.Context(), a)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *articleHandler) copy(c *gin.Context) {
	var req copyRequest
	if !bind(c, &req) {
		return
	}
	a, ok := h.load(c)
	if !ok {
		return
	}
	languages := req.Languages
	if len(languages) == 0 {
		languages = h.svc.Languages()
	}
	copied, err := h.svc.CopyToBlog(c.Request.Context(), a, req.Blog, languages)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, copied)
}

func (h *articleHandler) history(c *gin.Context) {
	var q changesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := q.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records, err := h.svc.History(c.Request.Context(), changes.Filter{
		ObjectID:  q.ObjectID,
		User:      q.User,
		Property:  q.Property,
		Blog:      q.Blog,
		Date:      q.Date,
		Ascending: q.Ascending,
		Limit:     q.Limit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": records})
}

func (h *articleHandler) orphans(c *gin.Context) {
	names, err := h.svc.OrphanBlogs(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blogs": names})
}

// mutate loads the article, runs fn on it and answers with the result.
func (h *articleHandler) mutate(c *gin.Context, fn func(a *article.Article) error) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	if err := fn(a); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *articleHandler) load(c *gin.Context) (*article.Article, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
		return nil, false
	}
	a, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return a, true
}

func bind(c *gin.Context, req validation.Validatable) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// committed reports whether err still means the edit was stored. The lost
// change records are logged.
func (h *articleHandler) committed(c *gin.Context, err error) bool {
	if !errors.Is(err, article.ErrAuditIncomplete) {
		return false
	}
	h.log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	return true
}

func (h *articleHandler) writeError(c *gin.Context, err error) {
	var herr article.HTTPError
	switch {
	case errors.Is(err, article.ErrNotFound), errors.Is(err, changes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, changes.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &herr):
		body := gin.H{"error": herr.Error()}
		var conflict *article.ConflictError
		if errors.As(err, &conflict) && conflict.Field != "" {
			body["field"] = conflict.Field
		}
		c.JSON(herr.StatusCode(), body)
	default:
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
