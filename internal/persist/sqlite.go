package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteArchive stores snapshots in a local sqlite file.
type SQLiteArchive struct {
	conn *sqlx.DB
	log  *zap.Logger
}

type snapshotRow struct {
	ID         string `db:"id"`
	Tick       int64  `db:"tick"`
	RecordedAt int64  `db:"recorded_at"`
	Live       int    `db:"live"`
	TierHigh   int    `db:"tier_high"`
	TierMedium int    `db:"tier_medium"`
	TierLow    int    `db:"tier_low"`
	TierOff    int    `db:"tier_off"`
	Payload    []byte `db:"payload"`
}

func (r snapshotRow) info() ArchiveInfo {
	info := ArchiveInfo{
		ID:         r.ID,
		Tick:       uint64(r.Tick),
		RecordedAt: time.UnixMilli(r.RecordedAt).UTC(),
		Live:       r.Live,
	}
	info.Tiers.High, info.Tiers.Medium, info.Tiers.Low, info.Tiers.Off = r.TierHigh, r.TierMedium, r.TierLow, r.TierOff
	return info
}

// OpenSQLite opens or creates the archive at path and migrates it.
func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteArchive, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, conn.DB, "sqlite3"); err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug("sqlite archive ready", zap.String("path", path))
	return &SQLiteArchive{conn: conn, log: log}, nil
}

func (a *SQLiteArchive) Record(ctx context.Context, s ArchivedSnapshot) error {
	_, err := a.conn.NamedExecContext(ctx,
		`INSERT INTO crowd_snapshots (id, tick, recorded_at, live, tier_high, tier_medium, tier_low, tier_off, payload)
		 VALUES (:id, :tick, :recorded_at, :live, :tier_high, :tier_medium, :tier_low, :tier_off, :payload)`,
		snapshotRow{
			ID:         s.ID,
			Tick:       int64(s.Tick),
			RecordedAt: s.RecordedAt.UnixMilli(),
			Live:       s.Live,
			TierHigh:   s.Tiers.High,
			TierMedium: s.Tiers.Medium,
			TierLow:    s.Tiers.Low,
			TierOff:    s.Tiers.Off,
			Payload:    s.Payload,
		})
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (a *SQLiteArchive) List(ctx context.Context, limit int) ([]ArchiveInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []snapshotRow
	if err := a.conn.SelectContext(ctx, &rows,
		`SELECT id, tick, recorded_at, live, tier_high, tier_medium, tier_low, tier_off
		 FROM crowd_snapshots ORDER BY tick DESC, recorded_at DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]ArchiveInfo, len(rows))
	for i, r := range rows {
		out[i] = r.info()
	}
	return out, nil
}

func (a *SQLiteArchive) Load(ctx context.Context, id string) (ArchivedSnapshot, error) {
	var r snapshotRow
	err := a.conn.GetContext(ctx, &r, `SELECT * FROM crowd_snapshots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ArchivedSnapshot{}, ErrNotFound
	}
	if err != nil {
		return ArchivedSnapshot{}, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return ArchivedSnapshot{ArchiveInfo: r.info(), Payload: r.Payload}, nil
}

func (a *SQLiteArchive) Close() error {
	return a.conn.Close()
}
