package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/crowdlod/server/internal/config"
	"github.com/crowdlod/server/internal/debug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleSnapshot(tick uint64) *debug.Snapshot {
	return &debug.Snapshot{
		Tick:  tick,
		Query: debug.Query{Kind: debug.QueryDump},
		Agents: []debug.AgentView{
			{Seq: 1, Tier: "high", Tags: []string{"crowd"}},
			{Seq: 2, Tier: "off"},
		},
	}
}

func openTestSQLite(t *testing.T) *SQLiteArchive {
	t.Helper()
	a, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "archive", "crowd.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewArchivedSnapshot_CountsAndRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewArchivedSnapshot(sampleSnapshot(40), at)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, uint64(40), s.Tick)
	assert.Equal(t, 2, s.Live)
	assert.Equal(t, debug.TierCounts{High: 1, Off: 1}, s.Tiers)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(40), snap.Tick)
	assert.Equal(t, debug.QueryDump, snap.Query.Kind)
	require.Len(t, snap.Agents, 2)
	assert.Equal(t, []string{"crowd"}, snap.Agents[0].Tags)
	assert.Equal(t, "off", snap.Agents[1].Tier)

	withStats := sampleSnapshot(41)
	withStats.Stats = &debug.Stats{Live: 7, Tiers: debug.TierCounts{Low: 7}}
	s, err = NewArchivedSnapshot(withStats, at)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Live)
	assert.Equal(t, 7, s.Tiers.Low)
}

func TestSQLiteArchive_RecordListLoad(t *testing.T) {
	ctx := context.Background()
	a := openTestSQLite(t)
	at := time.UnixMilli(1_700_000_000_000).UTC()

	var ids []string
	for _, tick := range []uint64{10, 30, 20} {
		s, err := NewArchivedSnapshot(sampleSnapshot(tick), at)
		require.NoError(t, err)
		require.NoError(t, a.Record(ctx, s))
		ids = append(ids, s.ID)
	}

	list, err := a.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(30), list[0].Tick)
	assert.Equal(t, uint64(20), list[1].Tick)
	assert.Equal(t, at, list[0].RecordedAt)

	got, err := a.Load(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Tick)
	snap, err := got.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 2)

	_, err = a.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteArchive_ReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "crowd.db")
	a, err := OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	s, err := NewArchivedSnapshot(sampleSnapshot(5), time.Now())
	require.NoError(t, err)
	require.NoError(t, a.Record(ctx, s))
	require.NoError(t, a.Close())

	a, err = OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	list, err := a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].ID)
}

type blockingArchive struct {
	mu      sync.Mutex
	release chan struct{}
	got     []uint64
	fail    bool
	closed  bool
}

func (b *blockingArchive) Record(_ context.Context, s ArchivedSnapshot) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("disk full")
	}
	b.got = append(b.got, s.Tick)
	return nil
}
func (b *blockingArchive) List(context.Context, int) ([]ArchiveInfo, error) { return nil, nil }
func (b *blockingArchive) Load(context.Context, string) (ArchivedSnapshot, error) {
	return ArchivedSnapshot{}, ErrNotFound
}
func (b *blockingArchive) Close() error { b.closed = true; return nil }

func TestAsyncArchiver_DropsWhenBehind(t *testing.T) {
	backend := &blockingArchive{release: make(chan struct{})}
	a := NewAsyncArchiver(backend, 2, zap.NewNop())

	// One snapshot may already be held by the writer, two fill the queue.
	for tick := uint64(1); tick <= 6; tick++ {
		require.NoError(t, a.Record(context.Background(), ArchivedSnapshot{ArchiveInfo: ArchiveInfo{Tick: tick}}))
	}
	assert.GreaterOrEqual(t, a.Dropped(), uint64(3))

	close(backend.release)
	require.NoError(t, a.Close())
	assert.True(t, backend.closed)
	assert.Equal(t, uint64(6), a.Written()+a.Dropped())
	assert.Equal(t, []uint64{1, 2, 3}[:a.Written()], backend.got)

	assert.ErrorIs(t, a.Record(context.Background(), ArchivedSnapshot{}), ErrClosed)
	assert.NoError(t, a.Close(), "second close is a no-op")
}

func TestAsyncArchiver_CountsFailures(t *testing.T) {
	backend := &blockingArchive{release: make(chan struct{}), fail: true}
	close(backend.release)
	a := NewAsyncArchiver(backend, 4, zap.NewNop())
	require.NoError(t, a.Record(context.Background(), ArchivedSnapshot{}))
	require.NoError(t, a.Close())
	assert.Equal(t, uint64(1), a.Failed())
	assert.Zero(t, a.Written())
}

func TestOpen_SelectsDriver(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, config.ArchiveConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = Open(ctx, config.ArchiveConfig{Driver: "mongo"}, zap.NewNop())
	assert.Error(t, err)

	a, err = Open(ctx, config.ArchiveConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "a.db")}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestPGArchive_RecordLoad(t *testing.T) {
	dsn := os.Getenv("CROWD_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CROWD_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	a, err := OpenPostgres(ctx, config.ArchiveConfig{DSN: dsn, MaxOpenConns: 2}, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	s, err := NewArchivedSnapshot(sampleSnapshot(99), time.Now())
	require.NoError(t, err)
	require.NoError(t, a.Record(ctx, s))
	got, err := a.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Tick, got.Tick)
	assert.Equal(t, s.Payload, got.Payload)

	list, err := a.List(ctx, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}
