package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crowdlod/server/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PGArchive stores snapshots in postgres through a pgx pool.
type PGArchive struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

func OpenPostgres(ctx context.Context, cfg config.ArchiveConfig, log *zap.Logger) (*PGArchive, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = RunMigrations(ctx, db, "postgres")
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &PGArchive{Pool: pool, log: log}, nil
}

func (a *PGArchive) Record(ctx context.Context, s ArchivedSnapshot) error {
	_, err := a.Pool.Exec(ctx,
		`INSERT INTO crowd_snapshots (id, tick, recorded_at, live, tier_high, tier_medium, tier_low, tier_off, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, int64(s.Tick), s.RecordedAt, s.Live,
		s.Tiers.High, s.Tiers.Medium, s.Tiers.Low, s.Tiers.Off, s.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (a *PGArchive) List(ctx context.Context, limit int) ([]ArchiveInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.Pool.Query(ctx,
		`SELECT id::text, tick, recorded_at, live, tier_high, tier_medium, tier_low, tier_off
		 FROM crowd_snapshots ORDER BY tick DESC, recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []ArchiveInfo
	for rows.Next() {
		var info ArchiveInfo
		var tick int64
		if err := rows.Scan(&info.ID, &tick, &info.RecordedAt, &info.Live,
			&info.Tiers.High, &info.Tiers.Medium, &info.Tiers.Low, &info.Tiers.Off); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.Tick = uint64(tick)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (a *PGArchive) Load(ctx context.Context, id string) (ArchivedSnapshot, error) {
	var s ArchivedSnapshot
	var tick int64
	err := a.Pool.QueryRow(ctx,
		`SELECT id::text, tick, recorded_at, live, tier_high, tier_medium, tier_low, tier_off, payload
		 FROM crowd_snapshots WHERE id = $1`, id,
	).Scan(&s.ID, &tick, &s.RecordedAt, &s.Live,
		&s.Tiers.High, &s.Tiers.Medium, &s.Tiers.Low, &s.Tiers.Off, &s.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	s.Tick = uint64(tick)
	return s, nil
}

func (a *PGArchive) Close() error {
	a.Pool.Close()
	return nil
}
