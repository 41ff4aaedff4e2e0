package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/retriever/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	type     TEXT    NOT NULL,
	location TEXT    NOT NULL,
	label    TEXT    NOT NULL,
	enabled  INTEGER NOT NULL DEFAULT 1,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (type, label)
)`

// SQLite keeps sources in a SQLite table ordered by position.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the registry database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close() //nolint:wrapcheck // passthrough
}

// List implements Registry.
func (s *SQLite) List(ctx context.Context) ([]domain.Source, error) {
	return s.query(ctx, `SELECT type, location, label, enabled FROM sources ORDER BY position, rowid`)
}

// ListEnabled implements Registry.
func (s *SQLite) ListEnabled(ctx context.Context) ([]domain.Source, error) {
	return s.query(ctx, `SELECT type, location, label, enabled FROM sources WHERE enabled = 1 ORDER BY position, rowid`)
}

// Upsert inserts src or updates the source with the same (type, label).
func (s *SQLite) Upsert(ctx context.Context, src domain.Source, position int) error {
	if err := validate(src, map[string]bool{}); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (type, location, label, enabled, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (type, label) DO UPDATE SET
			location = excluded.location,
			enabled  = excluded.enabled,
			position = excluded.position`,
		string(src.Type), src.Location, src.Label, boolToInt(src.Enabled), position)
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.Key(), err)
	}
	return nil
}

// SetEnabled toggles a source. Unknown sources return sql.ErrNoRows.
func (s *SQLite) SetEnabled(ctx context.Context, t domain.SourceType, label string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET enabled = ? WHERE type = ? AND label = ?`,
		boolToInt(enabled), string(t), label)
	if err != nil {
		return fmt.Errorf("update source %s:%s: %w", t, label, err)
	}
	return requireRow(res, t, label)
}

// Delete removes a source. Unknown sources return sql.ErrNoRows.
func (s *SQLite) Delete(ctx context.Context, t domain.SourceType, label string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE type = ? AND label = ?`, string(t), label)
	if err != nil {
		return fmt.Errorf("delete source %s:%s: %w", t, label, err)
	}
	return requireRow(res, t, label)
}

func (s *SQLite) query(ctx context.Context, q string) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Source
	for rows.Next() {
		var (
			typ, location, label string
			enabled              int
		)
		if err := rows.Scan(&typ, &location, &label, &enabled); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, domain.Source{
			Type:     domain.SourceType(typ),
			Location: location,
			Label:    label,
			Enabled:  enabled != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

func requireRow(res sql.Result, t domain.SourceType, label string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("source %s:%s: %w", t, label, sql.ErrNoRows)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time checks.
var (
	_ Registry = (*File)(nil)
	_ Registry = (*SQLite)(nil)
)
