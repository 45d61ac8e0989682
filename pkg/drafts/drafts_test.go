package drafts

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/pkg/models"
)

func sampleDTO(name string) models.WorkflowDTO {
	return models.WorkflowDTO{
		Name: name,
		Nodes: []models.SerializedNode{
			{ID: "node_1", Type: models.NodeTypeStart, Data: models.NodeData{Label: "Start", Type: models.NodeTypeStart}},
		},
		Edges: []models.SerializedEdge{},
	}
}

// repositories under test share one behavioral contract.
func runRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()

	ctx := t.Context()

	// Absent draft loads as nil, nil.
	dto, err := repo.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, dto)

	// Save stamps UpdatedAt and the id.
	require.NoError(t, repo.Save(ctx, "wf-1", sampleDTO("First")))

	dto, err = repo.Load(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, dto)
	assert.Equal(t, "wf-1", dto.ID)
	assert.Equal(t, "First", dto.Name)
	assert.NotEmpty(t, dto.UpdatedAt)

	// Save is an upsert.
	require.NoError(t, repo.Save(ctx, "wf-1", sampleDTO("Second")))

	dto, err = repo.Load(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, dto)
	assert.Equal(t, "Second", dto.Name)

	// List covers every stored id.
	require.NoError(t, repo.Save(ctx, "wf-2", sampleDTO("Other")))

	ids, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-1", "wf-2"}, ids)

	// Clear removes, and clearing twice stays silent.
	require.NoError(t, repo.Clear(ctx, "wf-1"))
	require.NoError(t, repo.Clear(ctx, "wf-1"))

	dto, err = repo.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, dto)
}

func TestFileRepository(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)

	defer repo.Close(t.Context())

	runRepositoryContract(t, repo)
}

func TestFileRepositoryCreatesRoot(t *testing.T) {
	root := t.TempDir() + "/nested/drafts"

	repo, err := NewFileRepository(root)
	require.NoError(t, err)

	require.NoError(t, repo.Save(t.Context(), "wf-1", sampleDTO("First")))

	ids, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-1"}, ids)
}

func TestRedisRepository(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisRepositoryWithClient(client)

	defer repo.Close(t.Context())

	runRepositoryContract(t, repo)
}

func TestRedisRepositorySurfacesBackendErrors(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisRepositoryWithClient(client)

	mr.Close()

	err := repo.Save(t.Context(), "wf-1", sampleDTO("First"))
	require.Error(t, err)

	var draftErr *DraftError
	require.ErrorAs(t, err, &draftErr)
	assert.Equal(t, "Save", draftErr.Op)
}
