package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	require.Error(t, err)
}

func TestRecordAndListRounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	id, err := store.RecordRound(ctx, Round{
		Project:          "novel",
		RoundNo:          1,
		StartedAt:        started,
		FinishedAt:       started.Add(5 * time.Minute),
		BatchesCompleted: 10,
		BatchesFailed:    2,
		ItemsTranslated:  240,
		InputTokens:      9000,
		OutputTokens:     4500,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	_, err = store.RecordRound(ctx, Round{Project: "novel", RoundNo: 2, StartedAt: started, FinishedAt: started})
	require.NoError(t, err)
	_, err = store.RecordRound(ctx, Round{Project: "other", RoundNo: 1, StartedAt: started, FinishedAt: started})
	require.NoError(t, err)

	rounds, err := store.ListRounds(ctx, "novel")
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	require.Equal(t, 1, rounds[0].RoundNo)
	require.Equal(t, 10, rounds[0].BatchesCompleted)
	require.Equal(t, 240, rounds[0].ItemsTranslated)
}

func TestTokenUsageAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, tokens := range []int{100, 250} {
		_, err := store.RecordRound(ctx, Round{
			Project: "novel", RoundNo: i + 1,
			StartedAt: now, FinishedAt: now,
			InputTokens: tokens, OutputTokens: tokens / 2,
		})
		require.NoError(t, err)
	}

	usage, err := store.TokenUsage(ctx, "novel")
	require.NoError(t, err)
	require.Equal(t, 350, usage.InputTokens)
	require.Equal(t, 175, usage.OutputTokens)
	require.Equal(t, 2, usage.Rounds)

	empty, err := store.TokenUsage(ctx, "unknown")
	require.NoError(t, err)
	require.Zero(t, empty.Rounds)
}

func TestNextRoundNo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.NextRoundNo(ctx, "novel")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	now := time.Now().UTC()
	_, err = store.RecordRound(ctx, Round{Project: "novel", RoundNo: 1, StartedAt: now, FinishedAt: now})
	require.NoError(t, err)

	n, err = store.NextRoundNo(ctx, "novel")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestMigrationVersion(t *testing.T) {
	require.Equal(t, 1, migrationVersion("001_init.sql"))
	require.Equal(t, 12, migrationVersion("012_add_index.sql"))
	require.Equal(t, 0, migrationVersion("init.sql"))
}
