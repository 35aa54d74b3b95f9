package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/persist"
)

func sampleSnapshot() *debug.Snapshot {
	return &debug.Snapshot{
		Tick:   42,
		Query:  debug.Query{Kind: debug.QueryDump},
		Agents: []debug.AgentView{{Handle: ecs.EntityID(3), Tier: "high", Tags: []string{"vip"}}},
	}
}

func TestDecodePayload_JSONAndZstd(t *testing.T) {
	plain, err := debug.EncodeJSON(sampleSnapshot())
	require.NoError(t, err)

	snap, err := decodePayload(append([]byte("\n  "), plain...))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), snap.Tick)

	z, err := debug.Compress(plain)
	require.NoError(t, err)
	snap, err = decodePayload(z)
	require.NoError(t, err)
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, "high", snap.Agents[0].Tier)

	_, err = decodePayload([]byte("not a snapshot"))
	assert.Error(t, err)
}

func TestWriteSnapshot_Formats(t *testing.T) {
	old := output
	t.Cleanup(func() { output = old })

	var buf bytes.Buffer
	output = "yaml"
	require.NoError(t, writeSnapshot(&buf, sampleSnapshot()))
	assert.Contains(t, buf.String(), "tick: 42")

	buf.Reset()
	output = "json"
	require.NoError(t, writeSnapshot(&buf, sampleSnapshot()))
	assert.Contains(t, buf.String(), `"tick":42`)

	output = "xml"
	assert.Error(t, writeSnapshot(&buf, sampleSnapshot()))
}

func TestListFromSQLiteArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()
	a, err := persist.OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	rec, err := persist.NewArchivedSnapshot(sampleSnapshot(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, a.Record(ctx, rec))
	require.NoError(t, a.Close())

	oldDriver, oldDSN := driver, dsn
	t.Cleanup(func() { driver, dsn = oldDriver, oldDSN })
	driver, dsn = "sqlite", path

	var buf bytes.Buffer
	err = withArchive(ctx, func(ctx context.Context, a persist.Archive) error {
		infos, err := a.List(ctx, 10)
		if err != nil {
			return err
		}
		return writeList(&buf, infos, time.Now())
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), rec.ID)
	assert.Contains(t, buf.String(), "1 hour ago")
}
