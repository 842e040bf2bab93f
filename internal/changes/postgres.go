package changes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostgresLog stores each record as JSON in changes(id bigserial, data json).
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

const changesSchema = `
CREATE TABLE IF NOT EXISTS changes (
	id bigserial NOT NULL,
	data json,
	CONSTRAINT changes_pkey PRIMARY KEY (id)
);
CREATE INDEX IF NOT EXISTS changes_oid_idx ON changes USING btree ((data ->> 'oid'));
CREATE INDEX IF NOT EXISTS changes_user_idx ON changes USING btree ((data ->> 'user'));
`

func (p *PostgresLog) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, changesSchema); err != nil {
		return fmt.Errorf("changes schema: %w", err)
	}
	return nil
}

func (p *PostgresLog) Append(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	rec := *r
	rec.Timestamp = rec.Timestamp.UTC()
	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO changes (data) VALUES ($1)`, data)
	return err
}

func (p *PostgresLog) Get(ctx context.Context, id string) (*Record, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM changes WHERE data->>'id' = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresLog) Find(ctx context.Context, f Filter) ([]*Record, error) {
	var conds []string
	var args []interface{}
	eq := func(key, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("data->>'%s' = $%d", key, len(args)))
	}
	if f.Table != "" {
		eq("table", f.Table)
	}
	if f.ObjectID != 0 {
		eq("oid", fmt.Sprint(f.ObjectID))
	}
	if f.User != "" {
		eq("user", f.User)
	}
	if f.Property != "" {
		eq("property", f.Property)
	}
	if f.Blog != "" {
		eq("blog", f.Blog)
	}
	if f.Date != "" {
		from, to, err := dateRange(f.Date)
		if err != nil {
			return nil, err
		}
		args = append(args, from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
		conds = append(conds, fmt.Sprintf("(data->>'timestamp')::timestamptz >= $%d AND (data->>'timestamp')::timestamptz < $%d", len(args)-1, len(args)))
	}
	q := `SELECT data FROM changes`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.Ascending {
		q += " ORDER BY (data->>'timestamp')::timestamptz ASC, id ASC"
	} else {
		q += " ORDER BY (data->>'timestamp')::timestamptz DESC, id DESC"
	}
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*Record{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
