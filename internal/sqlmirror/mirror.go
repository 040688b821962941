// Package sqlmirror copies a loaded table into an in-memory SQLite database
// so the engine's access-path comparison can be set next to SQLite's own
// query plans.
package sqlmirror

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/gommon/log"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously

	"trackstats/internal/catalog"
	"trackstats/internal/engine"
	"trackstats/internal/models"
)

const table = "spotify"

// Mirror is an in-memory SQLite copy of one column store.
type Mirror struct {
	db   *sql.DB
	rows int
}

// Open creates the mirror and copies every row of s into it.
func Open(ctx context.Context, s *engine.ColumnStore) (*Mirror, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}

	m := &Mirror{db: db}
	if err := m.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}

	start := time.Now()
	if err := m.copy(ctx, s); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("SQLite mirror: copied %d rows in %v", m.rows, time.Since(start))
	return m, nil
}

// Close ensures the DB connection is closed gracefully
func (m *Mirror) Close() error {
	return m.db.Close()
}

func sqlType(k engine.Kind) string {
	switch k {
	case engine.KindFloat:
		return "REAL"
	case engine.KindCount, engine.KindBool:
		return "INTEGER"
	}
	return "TEXT"
}

// createTableSQL mirrors the source DDL: one flat table, no primary key.
func createTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	cols := engine.Columns()
	for i, c := range cols {
		fmt.Fprintf(&b, "\t%s %s", c, sqlType(c.Kind()))
		if i < len(cols)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

func (m *Mirror) migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, createTableSQL())
	return err
}

func (m *Mirror) copy(ctx context.Context, s *engine.ColumnStore) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	cols := engine.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = string(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	// Prepare statements once for performance
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), placeholders))
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	f := s.All()
	for k := 0; k < f.Len(); k++ {
		r := f.Row(k)
		for i, c := range cols {
			args[i] = sqlValue(r.Value(c))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrapf(err, "insert row %d", k+1)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	m.rows = f.Len()
	return nil
}

// sqlValue converts engine values into driver values. Enums are stored by
// their canonical name.
func sqlValue(v any) any {
	switch x := v.(type) {
	case models.AlbumType:
		return x.String()
	case models.Platform:
		return x.String()
	}
	return v
}

// Count returns the number of mirrored rows as SQLite sees them.
func (m *Mirror) Count(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, errors.Wrap(err, "count rows")
}

func indexName(c engine.Column) string { return "idx_" + table + "_" + string(c) }

// CreateIndex creates a single-column index on c if it does not exist.
func (m *Mirror) CreateIndex(ctx context.Context, c engine.Column) error {
	c, err := engine.ParseColumn(string(c))
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(c), table, c))
	return errors.Wrapf(err, "create index on %s", c)
}

// Explain returns the detail lines of SQLite's plan for selecting the rows
// matching a.
func (m *Mirror) Explain(ctx context.Context, a catalog.Access) ([]string, error) {
	query, args, err := selectSQL(a)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "explain %s", a)
	}
	defer rows.Close()

	var plan []string
	for rows.Next() {
		var id, parent, notUsed int
		var detail string
		if err := rows.Scan(&id, &parent, &notUsed, &detail); err != nil {
			return nil, errors.Wrap(err, "failed to scan plan row")
		}
		plan = append(plan, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate plan")
	}
	return plan, nil
}

// Select runs the mirror query for a and returns the matching row count.
func (m *Mirror) Select(ctx context.Context, a catalog.Access) (int, error) {
	query, args, err := selectSQL(a)
	if err != nil {
		return 0, err
	}
	var n int
	err = m.db.QueryRowContext(ctx, strings.Replace(query, "SELECT *", "SELECT COUNT(*)", 1), args...).Scan(&n)
	return n, errors.Wrapf(err, "select %s", a)
}

// PlanBeforeAfter explains a, creates the index on a's column and explains
// it again.
func (m *Mirror) PlanBeforeAfter(ctx context.Context, a catalog.Access) (before, after []string, err error) {
	if before, err = m.Explain(ctx, a); err != nil {
		return nil, nil, err
	}
	if err = m.CreateIndex(ctx, a.Column); err != nil {
		return nil, nil, err
	}
	if after, err = m.Explain(ctx, a); err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// selectSQL renders a as a SELECT. Full access orders by the column so an
// index on it turns into a full index walk.
func selectSQL(a catalog.Access) (string, []any, error) {
	c, err := engine.ParseColumn(string(a.Column))
	if err != nil {
		return "", nil, err
	}
	switch a.Op {
	case catalog.OpAll:
		return fmt.Sprintf("SELECT * FROM %s ORDER BY %s", table, c), nil, nil
	case catalog.OpGt:
		lower, err := a.Lower()
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("SELECT * FROM %s WHERE %s > ?", table, c), []any{lower}, nil
	case catalog.OpEq:
		key, err := engine.ParseKey(c, a.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", table, c), []any{sqlValue(key)}, nil
	}
	return "", nil, errors.Newf("unsupported operator %q", string(a.Op))
}
