package blog

import (
	"context"
	"errors"
)

// Names of the virtual containers. Articles in them have no lifecycle
// dependency on a stored blog record.
const (
	Trash  = "Trash"
	Future = "Future"
	TBC    = "TBC"

	StatusOpen   = "open"
	StatusClosed = "closed"
)

var ErrNotFound = errors.New("blog not found")

// Blog carries the lifecycle signals of a container that articles are
// collected into. Only the flags are modeled here; status transitions are
// owned elsewhere.
type Blog struct {
	Name     string          `json:"name" bson:"name"`
	Status   string          `json:"status" bson:"status"`
	Closed   map[string]bool `json:"closed,omitempty" bson:"closed,omitempty"`
	Exported map[string]bool `json:"exported,omitempty" bson:"exported,omitempty"`
}

func (b *Blog) IsClosed(lang string) bool {
	return b != nil && b.Closed[lang]
}

func (b *Blog) IsExported(lang string) bool {
	return b != nil && b.Exported[lang]
}

// IsVirtual reports whether name is one of the pseudo containers.
func IsVirtual(name string) bool {
	return name == Trash || name == Future || name == TBC
}

func IsTrash(name string) bool { return name == Trash }

// Finder looks up containers by name. A missing container yields ErrNotFound.
type Finder interface {
	FindByName(ctx context.Context, name string) (*Blog, error)
}

// OrphanCache holds the list of container names that are referenced by
// articles but have no stored record. Entries never expire; callers drop
// them with Invalidate after a mutation commits.
type OrphanCache interface {
	Get(ctx context.Context) (names []string, ok bool, err error)
	Set(ctx context.Context, names []string) error
	Invalidate(ctx context.Context) error
}
