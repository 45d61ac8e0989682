package cmd

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/pkg/drafts"
)

func TestNewDraftsSelectsFileBackend(t *testing.T) {
	repo, err := NewDrafts(t.Context(), t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = repo.Close(t.Context()) })

	assert.IsType(t, &drafts.FileRepository{}, repo)
}

func TestNewDraftsSelectsRedisBackend(t *testing.T) {
	server := miniredis.RunT(t)

	repo, err := NewDrafts(t.Context(), "redis://"+server.Addr())
	require.NoError(t, err)

	t.Cleanup(func() { _ = repo.Close(t.Context()) })

	assert.IsType(t, &drafts.RedisRepository{}, repo)
}

func TestNewDraftsRedisConnectFailure(t *testing.T) {
	_, err := NewDrafts(t.Context(), "redis://127.0.0.1:1")
	require.Error(t, err)
}
