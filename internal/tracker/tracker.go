package tracker

import (
	"context"
	"errors"

	"forgeflow.app/engine/internal/model"
)

// ErrNotFound is returned when a referenced item or change does not exist.
var ErrNotFound = errors.New("not found")

type CreateChangeParams struct {
	Branch string
	Title  string
	Body   string
}

// Tracker is the engine's view of the issue-tracking backend. The tracker is
// the single source of truth for item state; the engine holds no cache
// across cycles.
type Tracker interface {
	ListOpenItems(ctx context.Context) ([]model.WorkItem, error)
	GetItem(ctx context.Context, id int64) (*model.WorkItem, error)
	SetLabel(ctx context.Context, id int64, label string) error
	ReplaceLabel(ctx context.Context, id int64, oldLabel, newLabel string) error
	AddComment(ctx context.Context, id int64, body string) error
	CloseItem(ctx context.Context, id int64) error

	CreateChange(ctx context.Context, params CreateChangeParams) (*model.ChangeRequest, error)
	GetChange(ctx context.Context, changeID int64) (*model.ChangeRequest, error)
	MergeChange(ctx context.Context, changeID int64, commitTitle string) error
	CheckStatus(ctx context.Context, changeID int64) (model.CheckStatus, error)
}
