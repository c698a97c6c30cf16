package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/planning"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

func TestDraftRepositoryLocalFallback(t *testing.T) {
	repo := NewDraftRepository(nil, 0)
	ctx := context.Background()
	key := DraftKey("tour1-2024-06-07", "ABC")
	assert.Equal(t, "planning:draft:tour1-2024-06-07:ABC", key)

	_, err := repo.Load(ctx, key)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	model := planning.NewSelectionModel()
	require.NoError(t, repo.Save(ctx, key, model.Snapshot()))

	snapshot, err := repo.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.Snapshot(), snapshot)

	require.NoError(t, repo.Delete(ctx, key))
	_, err = repo.Load(ctx, key)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}
