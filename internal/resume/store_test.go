package resume

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"reelfeed/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "resume.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewStore(db, 12*time.Hour, 5)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestResumeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := types.ResumeRecord{
		ItemID:          "x7",
		Index:           4,
		Page:            2,
		TimestampMillis: time.Now().UnixMilli(),
	}
	require.NoError(t, s.SaveResume(ctx, "local", rec))

	got, ok, err := s.GetResume(ctx, "local")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestResumeMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetResume(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaleResumeDiscarded(t *testing.T) {
	// 13h old record is past the 12h TTL and must not be applied
	s := newTestStore(t)
	ctx := context.Background()

	rec := types.ResumeRecord{
		ItemID:          "x7",
		Index:           4,
		Page:            2,
		TimestampMillis: time.Now().Add(-13 * time.Hour).UnixMilli(),
	}
	require.NoError(t, s.SaveResume(ctx, "local", rec))

	_, ok, err := s.GetResume(ctx, "local")
	require.NoError(t, err)
	assert.False(t, ok)

	// and it was deleted, not just skipped
	var n int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM resume_state`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestResumeUpsertOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResume(ctx, "local", types.ResumeRecord{ItemID: "a", TimestampMillis: time.Now().UnixMilli()}))
	require.NoError(t, s.SaveResume(ctx, "local", types.ResumeRecord{ItemID: "b", Index: 1, TimestampMillis: time.Now().UnixMilli()}))

	got, ok, err := s.GetResume(ctx, "local")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", got.ItemID)
	assert.Equal(t, 1, got.Index)
}

func TestSeenKeysRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkSeen(ctx, "local", "a", "b"))
	seen, err := s.SeenKeys(ctx, "local")
	require.NoError(t, err)
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
	assert.False(t, seen["c"])

	// profiles are isolated
	other, err := s.SeenKeys(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSeenKeysCapPrunesOldest(t *testing.T) {
	s := newTestStore(t) // cap 5
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, s.MarkSeen(ctx, "local", fmt.Sprintf("k%d", i)))
		time.Sleep(2 * time.Millisecond) // distinct seen_ms ordering
	}

	seen, err := s.SeenKeys(ctx, "local")
	require.NoError(t, err)
	assert.Len(t, seen, 5)
	for i := 3; i < 8; i++ {
		assert.True(t, seen[fmt.Sprintf("k%d", i)], "newest keys survive")
	}
	for i := 0; i < 3; i++ {
		assert.False(t, seen[fmt.Sprintf("k%d", i)], "oldest keys pruned")
	}
}

func TestResetSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.MarkSeen(ctx, "local", "a"))
	require.NoError(t, s.ResetSeen(ctx, "local"))
	seen, err := s.SeenKeys(ctx, "local")
	require.NoError(t, err)
	assert.Empty(t, seen)
}
