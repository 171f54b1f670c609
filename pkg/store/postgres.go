package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
)

type cachedMatchModel struct {
	bun.BaseModel `bun:"table:cached_matches,alias:cm"`

	ID        int64     `bun:"id,pk,autoincrement"`
	MatchID   string    `bun:"match_id,notnull,unique"`
	Region    string    `bun:"region,notnull"`
	Data      string    `bun:"data,type:jsonb,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type processedStatsModel struct {
	bun.BaseModel `bun:"table:processed_stats,alias:ps"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Type        string    `bun:"type,notnull"`
	Region      string    `bun:"region,notnull"`
	Data        string    `bun:"data,type:jsonb,notnull"`
	LastUpdated time.Time `bun:"last_updated,notnull,default:current_timestamp"`
}

type regionStatusModel struct {
	bun.BaseModel `bun:"table:region_status,alias:rs"`

	Region      string    `bun:"region,pk"`
	Status      string    `bun:"status,notnull"`
	LastUpdated time.Time `bun:"last_updated,notnull,default:current_timestamp"`
	ErrorCount  int       `bun:"error_count,notnull,default:0"`
	LastError   string    `bun:"last_error,nullzero"`
}

// Postgres is a Store backed by PostgreSQL through bun.
type Postgres struct {
	db  *bun.DB
	now func() time.Time
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pgdb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(pgdb, pgdialect.New())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return NewPostgres(db), nil
}

// NewPostgres wraps an open bun database.
func NewPostgres(db *bun.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Migrate creates the tables and indexes when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	models := []any{
		(*cachedMatchModel)(nil),
		(*processedStatsModel)(nil),
		(*regionStatusModel)(nil),
	}
	for _, m := range models {
		if _, err := p.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*cachedMatchModel)(nil), "idx_cached_matches_region", []string{"region"}},
		{(*processedStatsModel)(nil), "idx_processed_stats_type_region", []string{"type", "region"}},
		{(*processedStatsModel)(nil), "idx_processed_stats_last_updated", []string{"last_updated"}},
	}
	for _, idx := range indexes {
		_, err := p.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (p *Postgres) SaveMatch(ctx context.Context, matchID, partition string, payload []byte) error {
	row := &cachedMatchModel{
		MatchID:   matchID,
		Region:    partition,
		Data:      string(payload),
		CreatedAt: p.now(),
	}
	_, err := p.db.NewInsert().
		Model(row).
		On("CONFLICT (match_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save match %s: %w", matchID, err)
	}
	return nil
}

func (p *Postgres) CachedMatches(ctx context.Context, partition string) ([]CachedMatch, error) {
	var rows []cachedMatchModel
	q := p.db.NewSelect().Model(&rows).Order("id ASC")
	if !isAll(partition) {
		q = q.Where("lower(region) = lower(?)", partition)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	out := make([]CachedMatch, len(rows))
	for i, r := range rows {
		out[i] = CachedMatch{
			MatchID:   r.MatchID,
			Partition: r.Region,
			Payload:   []byte(r.Data),
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

func (p *Postgres) SaveProcessedStats(ctx context.Context, kind, partition string, payload []byte) error {
	row := &processedStatsModel{
		Type:        kind,
		Region:      partition,
		Data:        string(payload),
		LastUpdated: p.now(),
	}
	if _, err := p.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("save %s stats for %s: %w", kind, partition, err)
	}
	return nil
}

func (p *Postgres) ProcessedStats(ctx context.Context, kind, partition string) ([]byte, error) {
	var row processedStatsModel
	err := p.db.NewSelect().
		Model(&row).
		Where("type = ?", kind).
		Where("region = ?", partition).
		OrderExpr("last_updated DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s stats for %s: %w", kind, partition, err)
	}
	return []byte(row.Data), nil
}

func (p *Postgres) UpdatePartitionStatus(ctx context.Context, partition string, status riot.Status, errMsg string) error {
	row := &regionStatusModel{
		Region:      partition,
		Status:      string(status),
		LastUpdated: p.now(),
	}
	q := p.db.NewInsert().
		Model(row).
		On("CONFLICT (region) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("last_updated = EXCLUDED.last_updated")
	if status == riot.StatusError {
		row.ErrorCount = 1
		row.LastError = errMsg
		q = q.Set("error_count = ?TableAlias.error_count + 1").
			Set("last_error = EXCLUDED.last_error")
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update status for %s: %w", partition, err)
	}
	return nil
}

func (p *Postgres) PartitionStatuses(ctx context.Context) ([]PartitionStatus, error) {
	var rows []regionStatusModel
	if err := p.db.NewSelect().Model(&rows).Order("region ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list partition statuses: %w", err)
	}
	out := make([]PartitionStatus, len(rows))
	for i, r := range rows {
		out[i] = statusFor(r.Region, riot.Status(r.Status), r.ErrorCount, r.LastError, r.LastUpdated)
	}
	return out, nil
}

// pruneStatsQuery keeps the newest snapshots per type and region.
const pruneStatsQuery = `id NOT IN (
	SELECT id FROM (
		SELECT id, ROW_NUMBER() OVER (PARTITION BY type, region ORDER BY last_updated DESC, id DESC) AS row_num
		FROM processed_stats
	) t
	WHERE t.row_num <= ?
)`

func (p *Postgres) Cleanup(ctx context.Context, keepFor time.Duration) error {
	cutoff := p.now().Add(-keepFor)
	_, err := p.db.NewDelete().
		Model((*cachedMatchModel)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete old matches: %w", err)
	}

	_, err = p.db.NewDelete().
		Model((*processedStatsModel)(nil)).
		Where(pruneStatsQuery, keepSnapshots).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("prune stats snapshots: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
