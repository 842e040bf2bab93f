package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/osmbc/articles/internal/article"
)

// PostgresRepo keeps every article as a JSON document in
// article(id bigserial, data json). Updates compare data->>'version'
// in the same statement that writes the new document.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const articleSchema = `
CREATE TABLE IF NOT EXISTS article (
	id bigserial NOT NULL,
	data json,
	CONSTRAINT article_pkey PRIMARY KEY (id)
);
CREATE INDEX IF NOT EXISTS article_blog_idx ON article USING btree ((data ->> 'blog'));
`

// EnsureSchema creates the table and indexes when missing.
func (p *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, articleSchema); err != nil {
		return fmt.Errorf("article schema: %w", err)
	}
	return nil
}

func decodeRow(id int64, data []byte) (*article.Article, error) {
	var a article.Article
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode article %d: %w", id, err)
	}
	a.ID = id
	return &a, nil
}

func (p *PostgresRepo) Get(ctx context.Context, id int64) (*article.Article, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM article WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, article.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(id, data)
}

func (p *PostgresRepo) Put(ctx context.Context, a *article.Article) error {
	if a.ID == 0 {
		var id int64
		if err := p.db.QueryRowContext(ctx, `SELECT nextval(pg_get_serial_sequence('article', 'id'))`).Scan(&id); err != nil {
			return fmt.Errorf("next article id: %w", err)
		}
		rec := *a
		rec.ID, rec.Version = id, 1
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, `INSERT INTO article (id, data) VALUES ($1, $2)`, id, data); err != nil {
			return err
		}
		a.ID, a.Version = rec.ID, rec.Version
		return nil
	}
	rec := *a
	rec.Version = a.Version + 1
	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE article SET data = $1 WHERE id = $2 AND (data->>'version')::int = $3`,
		data, a.ID, a.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM article WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return article.ErrNotFound
		}
		return article.ErrVersionConflict
	}
	a.Version = rec.Version
	return nil
}

// orderClause appends the ORDER BY for o. The attribute name is passed as
// parameter n.
func orderClause(o article.Order, args []interface{}) (string, []interface{}) {
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	if o.Field == "" || o.Field == "id" {
		return " ORDER BY id " + dir, args
	}
	args = append(args, o.Field)
	return fmt.Sprintf(" ORDER BY data->>$%d %s, id ASC", len(args), dir), args
}

func (p *PostgresRepo) query(ctx context.Context, query string, args ...interface{}) ([]*article.Article, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*article.Article{}
	for rows.Next() {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		a, err := decodeRow(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresRepo) where(q article.Query) (string, []interface{}) {
	var conds []string
	var args []interface{}
	for k, v := range q {
		args = append(args, k, v)
		conds = append(conds, fmt.Sprintf("data->>$%d = $%d", len(args)-1, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *PostgresRepo) Find(ctx context.Context, q article.Query, o article.Order) ([]*article.Article, error) {
	w, args := p.where(q)
	ord, args := orderClause(o, args)
	return p.query(ctx, `SELECT id, data FROM article`+w+ord, args...)
}

func (p *PostgresRepo) FindOne(ctx context.Context, q article.Query) (*article.Article, error) {
	w, args := p.where(q)
	list, err := p.query(ctx, `SELECT id, data FROM article`+w+` ORDER BY id ASC LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, article.ErrNotFound
	}
	return list[0], nil
}

// FullTextSearch matches text case-insensitively against every top-level
// string value of the stored document.
func (p *PostgresRepo) FullTextSearch(ctx context.Context, text string, o article.Order) ([]*article.Article, error) {
	pattern := "%" + escapeLike(text) + "%"
	ord, args := orderClause(o, []interface{}{pattern})
	return p.query(ctx,
		`SELECT id, data FROM article a WHERE EXISTS (
			SELECT 1 FROM json_each_text(a.data) e WHERE e.value ILIKE $1
		)`+ord, args...)
}

func (p *PostgresRepo) Distinct(ctx context.Context, field string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT data->>$1 AS v FROM article WHERE COALESCE(data->>$1, '') <> '' ORDER BY v`, field)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
