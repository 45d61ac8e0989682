package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/nodeloom/nodeloom/pkg/drafts"
)

// NewDrafts creates a draft repository from a storage URL. A redis:// or
// rediss:// URL selects Redis; anything else is treated as a filesystem path.
func NewDrafts(ctx context.Context, storageURL string) (drafts.Repository, error) {
	if strings.HasPrefix(storageURL, "redis://") || strings.HasPrefix(storageURL, "rediss://") {
		repo, err := drafts.NewRedisRepository(ctx, storageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis draft storage: %w", err)
		}

		return repo, nil
	}

	return drafts.NewFileRepository(strings.TrimPrefix(storageURL, "file://"))
}
