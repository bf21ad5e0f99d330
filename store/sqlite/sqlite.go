// Package sqlite implements the embedded-relational fingerprint/state
// backend named in spec.md §4.3: one query plus an affected-rows
// check per method, built on the embedded mattn/go-sqlite3 driver
// via database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"eve.evalgo.org/otelscrape/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	source     TEXT NOT NULL,
	digest     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (source, digest)
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_source_expires
	ON fingerprints(source, expires_at);
CREATE TABLE IF NOT EXISTS state (
	source       TEXT PRIMARY KEY,
	last_success INTEGER NOT NULL
);
`

// Config configures retry behavior for SQLITE_BUSY errors, per
// spec.md §4.3 ("writers must retry on transient busy errors with
// exponential backoff, base 100ms, cap 1s, configurable retries").
type Config struct {
	Path          string
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		MaxRetries:  5,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	}
}

// Store is the sqlite-backed store.Store implementation.
type Store struct {
	db  *sql.DB
	cfg Config
}

// Open opens (creating if absent) the sqlite database at cfg.Path and
// applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 1 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=1000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db, cfg: cfg}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// withRetry runs fn, retrying on a busy error with exponential backoff.
func (s *Store) withRetry(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	backoff := s.cfg.BaseBackoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			lastErr = err
		} else {
			err = fn(tx)
			if err == nil {
				if cerr := tx.Commit(); cerr == nil {
					return nil
				} else {
					lastErr = cerr
				}
			} else {
				tx.Rollback()
				lastErr = err
			}
		}

		if !isBusy(lastErr) || attempt == s.cfg.MaxRetries {
			return &store.Error{Op: op, Err: lastErr}
		}

		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		select {
		case <-ctx.Done():
			return &store.Error{Op: op, Err: ctx.Err()}
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
	return &store.Error{Op: op, Err: lastErr}
}

func isBusy(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

func (s *Store) LoadLastSuccess(ctx context.Context, source string) (time.Time, bool, error) {
	var unixSec int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_success FROM state WHERE source = ?`, source).Scan(&unixSec)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &store.Error{Op: "LoadLastSuccess", Err: err}
	}
	return time.Unix(unixSec, 0).UTC(), true, nil
}

func (s *Store) SaveLastSuccess(ctx context.Context, source string, end time.Time) error {
	return s.withRetry(ctx, "SaveLastSuccess", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO state (source, last_success) VALUES (?, ?)
			ON CONFLICT(source) DO UPDATE SET last_success = excluded.last_success
		`, source, end.Unix())
		return err
	})
}

func (s *Store) Seen(ctx context.Context, source, digest string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM fingerprints
		WHERE source = ? AND digest = ? AND expires_at > ?
	`, source, digest, time.Now().Unix()).Scan(&count)
	if err != nil {
		return false, &store.Error{Op: "Seen", Err: err}
	}
	return count > 0, nil
}

func (s *Store) InsertMany(ctx context.Context, source string, digests []string, ttl time.Duration) error {
	if len(digests) == 0 {
		return nil
	}
	if len(digests) > 10000 {
		return &store.Error{Op: "InsertMany", Err: fmt.Errorf("batch of %d exceeds 10^4 transaction cap", len(digests))}
	}
	now := time.Now()
	expires := now.Add(ttl).Unix()

	return s.withRetry(ctx, "InsertMany", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fingerprints (source, digest, created_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(source, digest) DO UPDATE SET
				created_at = excluded.created_at,
				expires_at = excluded.expires_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, d := range digests {
			if _, err := stmt.ExecContext(ctx, source, d, now.Unix(), expires); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) EnforceCap(ctx context.Context, source string, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}
	return s.withRetry(ctx, "EnforceCap", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM fingerprints
			WHERE source = ? AND digest NOT IN (
				SELECT digest FROM fingerprints
				WHERE source = ?
				ORDER BY created_at DESC
				LIMIT ?
			)
		`, source, source, maxEntries)
		return err
	})
}

func (s *Store) GCExpired(ctx context.Context) (int, error) {
	var removed int
	err := s.withRetry(ctx, "GCExpired", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE expires_at <= ?`, time.Now().Unix())
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed = int(n)
		return nil
	})
	return removed, err
}

func (s *Store) GCOrphans(ctx context.Context, liveSources []string) (int, error) {
	var removed int
	err := s.withRetry(ctx, "GCOrphans", func(tx *sql.Tx) error {
		placeholders := make([]string, len(liveSources))
		args := make([]interface{}, len(liveSources))
		for i, src := range liveSources {
			placeholders[i] = "?"
			args[i] = src
		}
		in := strings.Join(placeholders, ",")
		if in == "" {
			in = "NULL"
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM fingerprints WHERE source NOT IN (%s)`, in), args...)
		if err != nil {
			return err
		}
		n1, _ := res.RowsAffected()

		res2, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM state WHERE source NOT IN (%s)`, in), args...)
		if err != nil {
			return err
		}
		n2, _ := res2.RowsAffected()

		removed = int(n1 + n2)
		return nil
	})
	return removed, err
}

var _ store.Store = (*Store)(nil)
