package blog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresRepo reads container records from blog(id bigserial, data json).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const blogSchema = `
CREATE TABLE IF NOT EXISTS blog (
	id bigserial NOT NULL,
	data json,
	CONSTRAINT blog_pkey PRIMARY KEY (id)
);
CREATE UNIQUE INDEX IF NOT EXISTS blog_name_idx ON blog USING btree ((data ->> 'name'));
`

func (p *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, blogSchema); err != nil {
		return fmt.Errorf("blog schema: %w", err)
	}
	return nil
}

// Save inserts b or replaces the record with the same name.
func (p *PostgresRepo) Save(ctx context.Context, b *Blog) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE blog SET data = $1 WHERE data->>'name' = $2`, data, b.Name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO blog (data) VALUES ($1)`, data)
	return err
}

func (p *PostgresRepo) FindByName(ctx context.Context, name string) (*Blog, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM blog WHERE data->>'name' = $1`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var b Blog
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode blog %q: %w", name, err)
	}
	return &b, nil
}
