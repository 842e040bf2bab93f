package changes

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("change record not found")
	ErrInvalidDate = errors.New("invalid date prefix")
)

// Record is one immutable field transition.
type Record struct {
	ID        string    `json:"id" bson:"_id"`
	Table     string    `json:"table" bson:"table"`
	ObjectID  int64     `json:"oid" bson:"oid"`
	Blog      string    `json:"blog,omitempty" bson:"blog,omitempty"`
	Property  string    `json:"property" bson:"property"`
	From      string    `json:"from" bson:"from"`
	To        string    `json:"to" bson:"to"`
	User      string    `json:"user" bson:"user"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Filter selects records; zero fields do not restrict. Results are ordered
// by timestamp, newest first unless Ascending is set.
type Filter struct {
	Table     string
	ObjectID  int64
	User      string
	Property  string
	Blog      string
	Date      string // "2006", "2006-01" or "2006-01-02"
	Ascending bool
	Limit     int
}

// Log is the append-only audit trail.
type Log interface {
	// Append stores r, assigning an id when r.ID is empty.
	Append(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Find(ctx context.Context, f Filter) ([]*Record, error)
}

// dateRange turns a date prefix into the half-open interval it covers.
func dateRange(prefix string) (time.Time, time.Time, error) {
	var layout string
	switch len(prefix) {
	case 4:
		layout = "2006"
	case 7:
		layout = "2006-01"
	case 10:
		layout = "2006-01-02"
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, prefix)
	}
	from, err := time.Parse(layout, prefix)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, prefix)
	}
	switch len(prefix) {
	case 4:
		return from, from.AddDate(1, 0, 0), nil
	case 7:
		return from, from.AddDate(0, 1, 0), nil
	}
	return from, from.AddDate(0, 0, 1), nil
}
