package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"classroom/internal/recordstore"
)

// maxPathBytes bounds a stored leaf path so it fits every dialect's key column.
const maxPathBytes = 760

const insertBatch = 200

// SQLTree stores the namespace in a relational table, one row per scalar
// leaf keyed by its full path.
type SQLTree struct {
	db *DB
}

// NewSQLTree returns a Backend over db. Call db.Migrate first.
func NewSQLTree(db *DB) *SQLTree {
	return &SQLTree{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (t *SQLTree) Get(ctx context.Context, p recordstore.Path) (any, error) {
	return t.get(ctx, t.db.Client, p)
}

func (t *SQLTree) get(ctx context.Context, q queryer, p recordstore.Path) (any, error) {
	where, args := subtree(p)
	rows, err := q.QueryContext(ctx, t.db.Dialect.Rebind("SELECT path, value FROM record_nodes"+where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	full := p.String()
	leaves := make(map[string]any)
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if path == full {
			return v, nil
		}
		rel := path
		if full != "" {
			rel = strings.TrimPrefix(path, full+"/")
		}
		leaves[rel] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, nil
	}
	return recordstore.Unflatten(leaves), nil
}

func (t *SQLTree) Set(ctx context.Context, p recordstore.Path, v any) error {
	return t.inTx(ctx, func(tx *sql.Tx) error {
		return t.write(ctx, tx, p, v)
	})
}

func (t *SQLTree) Update(ctx context.Context, _ recordstore.Path, writes []recordstore.Write) error {
	return t.inTx(ctx, func(tx *sql.Tx) error {
		for _, w := range writes {
			if err := t.write(ctx, tx, w.Path, w.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *SQLTree) Delete(ctx context.Context, p recordstore.Path) error {
	return t.Set(ctx, p, nil)
}

func (t *SQLTree) Push(ctx context.Context, p recordstore.Path, v any) (string, error) {
	key := recordstore.NewKey()
	child, err := p.Child(key)
	if err != nil {
		return "", err
	}
	return key, t.Set(ctx, child, v)
}

// Close is a no-op; the DB is owned by the caller.
func (t *SQLTree) Close() error { return nil }

func (t *SQLTree) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := t.db.Client.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if lock := t.db.Dialect.WriteLock(); lock != "" {
		if _, err := tx.ExecContext(ctx, lock); err != nil {
			return err
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// write replaces the subtree at p with v inside tx.
func (t *SQLTree) write(ctx context.Context, tx *sql.Tx, p recordstore.Path, v any) error {
	type row struct{ path, value string }
	var rows []row
	var flatErr error
	recordstore.Flatten(v, func(rel recordstore.Path, leaf any) {
		if flatErr != nil {
			return
		}
		full := append(append(recordstore.Path{}, p...), rel...).String()
		if len(full) > maxPathBytes {
			flatErr = recordstore.Errorf(recordstore.KindInvalidRecord, "path %s longer than %d bytes", full, maxPathBytes)
			return
		}
		raw, err := json.Marshal(leaf)
		if err != nil {
			flatErr = err
			return
		}
		rows = append(rows, row{path: full, value: string(raw)})
	})
	if flatErr != nil {
		return flatErr
	}

	// a scalar stored at an ancestor would shadow the new value
	if v != nil && len(p) > 1 {
		anc := make([]any, 0, len(p)-1)
		for i := 1; i < len(p); i++ {
			anc = append(anc, p[:i].String())
		}
		q := "DELETE FROM record_nodes WHERE path IN (?" + strings.Repeat(", ?", len(anc)-1) + ")"
		if _, err := tx.ExecContext(ctx, t.db.Dialect.Rebind(q), anc...); err != nil {
			return err
		}
	}

	where, args := subtree(p)
	if _, err := tx.ExecContext(ctx, t.db.Dialect.Rebind("DELETE FROM record_nodes"+where), args...); err != nil {
		return err
	}

	for start := 0; start < len(rows); start += insertBatch {
		end := start + insertBatch
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		args := make([]any, 0, 2*len(batch))
		for _, r := range batch {
			args = append(args, r.path, r.value)
		}
		q := "INSERT INTO record_nodes (path, value) VALUES (?, ?)" + strings.Repeat(", (?, ?)", len(batch)-1)
		if _, err := tx.ExecContext(ctx, t.db.Dialect.Rebind(q), args...); err != nil {
			return err
		}
	}
	return nil
}

// subtree selects p and every row below it. '0' sorts right after '/'.
func subtree(p recordstore.Path) (string, []any) {
	if p.IsRoot() {
		return "", nil
	}
	s := p.String()
	return " WHERE path = ? OR (path >= ? AND path < ?)", []any{s, s + "/", s + "0"}
}
