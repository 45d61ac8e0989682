package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nodeloom/nodeloom/pkg/models"
)

const draftFileMode = 0o600

// FileRepository stores one JSON file per draft under a root directory. It is
// meant for single-user desktop sessions and tests.
type FileRepository struct {
	mu   sync.Mutex
	root string
}

// NewFileRepository creates the root directory when missing.
func NewFileRepository(root string) (*FileRepository, error) {
	root = strings.TrimPrefix(root, "file://")

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, NewDraftError("NewFileRepository", "", err)
	}

	return &FileRepository{root: root}, nil
}

func (r *FileRepository) path(id string) string {
	return filepath.Join(r.root, fmt.Sprintf("draft-%s.json", id))
}

// Save writes the draft atomically via a temp file rename.
func (r *FileRepository) Save(_ context.Context, id string, dto models.WorkflowDTO) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dto.ID = id
	dto.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return NewDraftError("Save", id, err)
	}

	tmp := r.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, draftFileMode); err != nil {
		return NewDraftError("Save", id, err)
	}

	if err := os.Rename(tmp, r.path(id)); err != nil {
		return NewDraftError("Save", id, err)
	}

	return nil
}

// Load returns nil when no draft file exists.
func (r *FileRepository) Load(_ context.Context, id string) (*models.WorkflowDTO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, NewDraftError("Load", id, err)
	}

	var dto models.WorkflowDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, NewDraftError("Load", id, err)
	}

	return &dto, nil
}

// Clear removes the draft file; a missing file is not an error.
func (r *FileRepository) Clear(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return NewDraftError("Clear", id, err)
	}

	return nil
}

// List returns the ids of all stored drafts in lexical order.
func (r *FileRepository) List(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, NewDraftError("List", "", err)
	}

	var ids []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "draft-") || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "draft-"), ".json"))
	}

	sort.Strings(ids)

	return ids, nil
}

// Close is a no-op for file storage.
func (r *FileRepository) Close(_ context.Context) error {
	return nil
}
