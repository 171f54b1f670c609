package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cached_matches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	match_id TEXT UNIQUE NOT NULL,
	region TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS processed_stats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	region TEXT NOT NULL,
	data TEXT NOT NULL,
	last_updated INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS region_status (
	region TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'active',
	last_updated INTEGER NOT NULL,
	error_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_cached_matches_region ON cached_matches(region);
CREATE INDEX IF NOT EXISTS idx_processed_stats_type_region ON processed_stats(type, region);
`

// SQLite is a single-file Store for embedded deployments. Timestamps are
// stored as unix milliseconds.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		log.Warn().Err(err).Msg("Failed to set WAL mode")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		log.Warn().Err(err).Msg("Failed to set synchronous mode")
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) SaveMatch(ctx context.Context, matchID, partition string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cached_matches (match_id, region, data, created_at) VALUES (?, ?, ?, ?)`,
		matchID, partition, string(payload), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save match %s: %w", matchID, err)
	}
	return nil
}

func (s *SQLite) CachedMatches(ctx context.Context, partition string) ([]CachedMatch, error) {
	query := `SELECT match_id, region, data, created_at FROM cached_matches`
	var args []any
	if !isAll(partition) {
		query += ` WHERE region = ? COLLATE NOCASE`
		args = append(args, partition)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	out := []CachedMatch{}
	for rows.Next() {
		var (
			c       CachedMatch
			data    string
			created int64
		)
		if err := rows.Scan(&c.MatchID, &c.Partition, &data, &created); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		c.Payload = []byte(data)
		c.CreatedAt = time.UnixMilli(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveProcessedStats(ctx context.Context, kind, partition string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_stats (type, region, data, last_updated) VALUES (?, ?, ?, ?)`,
		kind, partition, string(payload), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s stats for %s: %w", kind, partition, err)
	}
	return nil
}

func (s *SQLite) ProcessedStats(ctx context.Context, kind, partition string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM processed_stats WHERE type = ? AND region = ? ORDER BY last_updated DESC, id DESC LIMIT 1`,
		kind, partition).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s stats for %s: %w", kind, partition, err)
	}
	return []byte(data), nil
}

func (s *SQLite) UpdatePartitionStatus(ctx context.Context, partition string, status riot.Status, errMsg string) error {
	now := s.now().UnixMilli()
	var err error
	if status == riot.StatusError {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO region_status (region, status, last_updated, error_count, last_error) VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT (region) DO UPDATE SET status = excluded.status, last_updated = excluded.last_updated,
			 error_count = region_status.error_count + 1, last_error = excluded.last_error`,
			partition, string(status), now, errMsg)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO region_status (region, status, last_updated) VALUES (?, ?, ?)
			 ON CONFLICT (region) DO UPDATE SET status = excluded.status, last_updated = excluded.last_updated`,
			partition, string(status), now)
	}
	if err != nil {
		return fmt.Errorf("update status for %s: %w", partition, err)
	}
	return nil
}

func (s *SQLite) PartitionStatuses(ctx context.Context) ([]PartitionStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region, status, last_updated, error_count, COALESCE(last_error, '') FROM region_status ORDER BY region ASC`)
	if err != nil {
		return nil, fmt.Errorf("list partition statuses: %w", err)
	}
	defer rows.Close()

	out := []PartitionStatus{}
	for rows.Next() {
		var (
			region, status, lastErr string
			updated                 int64
			count                   int
		)
		if err := rows.Scan(&region, &status, &updated, &count, &lastErr); err != nil {
			return nil, fmt.Errorf("scan partition status: %w", err)
		}
		out = append(out, statusFor(region, riot.Status(status), count, lastErr, time.UnixMilli(updated)))
	}
	return out, rows.Err()
}

func (s *SQLite) Cleanup(ctx context.Context, keepFor time.Duration) error {
	cutoff := s.now().Add(-keepFor).UnixMilli()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_matches WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("delete old matches: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_stats WHERE `+pruneStatsQuery, keepSnapshots); err != nil {
		return fmt.Errorf("prune stats snapshots: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
