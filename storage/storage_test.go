package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Storage {
	t.Helper()
	dsn, err := FileDSN(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	store, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFileDSNRequiresPath(t *testing.T) {
	_, err := FileDSN("   ")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestRecordAndListEvents(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordEvent(ctx, "escrow.created", map[string]string{"id": "ab"}))
	require.NoError(t, store.RecordEvent(ctx, "escrow.released", map[string]string{"id": "ab", "fee": "5"}))
	require.NoError(t, store.RecordEvent(ctx, "escrow.created", map[string]string{"id": "cd"}))

	all, err := store.ListEvents(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "escrow.created", all[0].Type)
	require.Equal(t, "cd", all[0].Attributes["id"])

	created, err := store.ListEvents(ctx, "escrow.created", 10)
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, evt := range created {
		require.Equal(t, "escrow.created", evt.Type)
	}
}

func TestRecordEventRejectsEmptyType(t *testing.T) {
	store := openTestStore(t)
	require.Error(t, store.RecordEvent(context.Background(), "   ", nil))
}

func TestListEventsClampsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordEvent(ctx, "escrow.created", map[string]string{"n": "x"}))
	}
	events, err := store.ListEvents(ctx, "", -1)
	require.NoError(t, err)
	require.Len(t, events, 5)
}
