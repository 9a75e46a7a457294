package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/learning-hub/shared/logger"
	"github.com/cuongbtq/learning-hub/shared/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigratingStore_MigratesOnFirstClaim(t *testing.T) {
	ctx := context.Background()

	client, err := sqlite.NewClient(&sqlite.Config{Path: filepath.Join(t.TempDir(), "queue.db")}, logger.NewNop().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := NewMigratingStore(NewStore(client.GetDB(), logger.NewNop().Logger, 3), false)
	assert.False(t, store.Migrated())

	_, err = store.Enqueue(ctx, "material-1")
	require.Error(t, err)

	job, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.True(t, store.Migrated())

	var versions int
	require.NoError(t, client.GetDB().Get(&versions, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, 2, versions)

	queued, err := store.Enqueue(ctx, "material-1")
	require.NoError(t, err)
	job, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queued.ID, job.ID)
}
