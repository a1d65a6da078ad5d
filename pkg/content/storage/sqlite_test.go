package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/holds/pkg/content"
)

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "content.db")

	store, err := NewSQLiteStore(cfg)
	require.NoError(t, err)

	folder := mustNode(t, store, "", "folder", content.KindContainer)
	require.NoError(t, store.RunInTransaction(ctx, func(tx content.Tx) error {
		return tx.SetHeldChildren(ctx, folder.Ref, 3)
	}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Node(ctx, folder.Ref)
	require.NoError(t, err)
	require.NotNil(t, got.HeldChildren)
	assert.Equal(t, int64(3), *got.HeldChildren)
}

func TestSQLiteStore_SetFreezeStateUnknownNode(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "content.db")

	store, err := NewSQLiteStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	err = store.RunInTransaction(ctx, func(tx content.Tx) error {
		return tx.SetFreezeState(ctx, "missing", 1, false)
	})
	assert.ErrorIs(t, err, content.ErrNodeNotFound)
}
