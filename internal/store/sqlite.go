package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a single SQLite table. Deleted rows are kept
// as tombstones so a key's version keeps increasing across delete and
// re-insert.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at dsn. Use ":memory:" for a
// private in-memory database.
func OpenSQLite(dsn string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := dsn
	if dsn != ":memory:" {
		path = dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, logger: logger.With("component", "store", "driver", "sqlite")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("sqlite store opened", "dsn", dsn)
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			row_key    TEXT PRIMARY KEY,
			version    INTEGER NOT NULL,
			fields     TEXT NOT NULL,
			deleted    INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

func (s *SQLite) Lookup(ctx context.Context, key string, fields []string) (*Row, error) {
	var (
		r         Row
		raw       string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT row_key, version, fields, updated_at FROM records WHERE row_key = ? AND deleted = 0`, key,
	).Scan(&r.Key, &r.Version, &raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), &r.Fields); err != nil {
		return nil, fmt.Errorf("decode row %q: %w", key, err)
	}
	r.UpdatedAt = time.Unix(0, updatedAt)
	if len(fields) == 0 {
		return &r, nil
	}
	return r.Project(fields), nil
}

func (s *SQLite) Put(ctx context.Context, key string, fields map[string]any) (uint64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("encode row %q: %w", key, err)
	}

	var version uint64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO records (row_key, version, fields, deleted, updated_at)
		VALUES (?, 1, ?, 0, ?)
		ON CONFLICT(row_key) DO UPDATE SET
			version = records.version + 1,
			fields = excluded.fields,
			deleted = 0,
			updated_at = excluded.updated_at
		RETURNING version
	`, key, string(data), time.Now().UnixNano()).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("put %q: %w", key, err)
	}
	return version, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET deleted = 1, fields = '{}', updated_at = ? WHERE row_key = ? AND deleted = 0`,
		time.Now().UnixNano(), key,
	)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Scan(ctx context.Context, fn func(*Row) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_key, version, fields, updated_at FROM records WHERE deleted = 0 ORDER BY row_key`)
	if err != nil {
		return fmt.Errorf("scan rows: %w", err)
	}
	// The single connection is held until rows is closed, so buffer first.
	var all []*Row
	for rows.Next() {
		var (
			r         Row
			raw       string
			updatedAt int64
		)
		if err := rows.Scan(&r.Key, &r.Version, &raw, &updatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Fields); err != nil {
			rows.Close()
			return fmt.Errorf("decode row %q: %w", r.Key, err)
		}
		r.UpdatedAt = time.Unix(0, updatedAt)
		all = append(all, &r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("scan rows: %w", err)
	}
	rows.Close()

	for _, r := range all {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
