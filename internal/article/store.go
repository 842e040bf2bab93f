package article

import "context"

// Query matches articles whose named string attributes equal the given values.
type Query map[string]string

// Order sorts results by a string attribute; Field "id" sorts numerically.
type Order struct {
	Field string
	Desc  bool
}

// Store persists articles by numeric id.
//
// Put inserts when ID is 0, assigning a fresh id and version 1. Otherwise it
// replaces the stored record only if the stored version equals a.Version,
// then increments a.Version; a mismatch returns ErrVersionConflict and
// leaves the record untouched.
type Store interface {
	Get(ctx context.Context, id int64) (*Article, error)
	Put(ctx context.Context, a *Article) error
	Find(ctx context.Context, q Query, o Order) ([]*Article, error)
	FindOne(ctx context.Context, q Query) (*Article, error)
	FullTextSearch(ctx context.Context, text string, o Order) ([]*Article, error)
	// Distinct lists the distinct non-empty values of a string attribute.
	Distinct(ctx context.Context, field string) ([]string, error)
}
