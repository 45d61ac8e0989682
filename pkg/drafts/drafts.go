// Package drafts provides the crash-recovery draft cache for in-progress
// workflows. It is best-effort storage, never the system of record: the
// backend API owns the durable copy.
package drafts

import (
	"context"
	"errors"
	"fmt"

	"github.com/nodeloom/nodeloom/pkg/models"
)

// Standard draft store error types.
var (
	// ErrDraftNotFound indicates no draft exists for the given workflow id.
	ErrDraftNotFound = errors.New("draft not found")
)

// Repository is the contract every draft store implementation satisfies.
// Load returns (nil, nil) when no draft exists; absence is not an error for
// callers that merely probe for recoverable state.
type Repository interface {
	// Save upserts the draft for the workflow id, stamping UpdatedAt.
	Save(ctx context.Context, id string, dto models.WorkflowDTO) error

	// Load returns the stored draft, or nil when none exists.
	Load(ctx context.Context, id string) (*models.WorkflowDTO, error)

	// Clear removes the draft. Clearing an absent draft is a no-op.
	Clear(ctx context.Context, id string) error

	// List returns the ids of all stored drafts.
	List(ctx context.Context) ([]string, error)

	// Close releases the store's resources.
	Close(ctx context.Context) error
}

// DraftError wraps draft store errors with operation context.
type DraftError struct {
	Op         string // Operation being performed (e.g., "Save", "Load")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *DraftError) Error() string {
	if e.WorkflowID == "" {
		return fmt.Sprintf("draft %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("draft %s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *DraftError) Unwrap() error {
	return e.Err
}

func (e *DraftError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDraftError creates a draft error with operation context.
func NewDraftError(op, workflowID string, err error) *DraftError {
	return &DraftError{Op: op, WorkflowID: workflowID, Err: err}
}

// IsDraftNotFound checks if an error indicates an absent draft.
func IsDraftNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound)
}
