package engine

import (
	"context"

	"github.com/louisbranch/timeloom/internal/branch"
	"github.com/louisbranch/timeloom/internal/entity"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// Branch registry passthroughs. Branch creation has no passthrough: only
// campaign bootstrap and Fork create branches.

// CreateRootBranch bootstraps a campaign's root branch.
func (e *Engine) CreateRootBranch(ctx context.Context, campaignID, name string, epoch timeline.Time) (branch.Branch, error) {
	return e.registry.CreateRoot(ctx, campaignID, name, epoch)
}

// GetBranch fetches one branch.
func (e *Engine) GetBranch(ctx context.Context, branchID string) (branch.Branch, error) {
	return e.registry.Get(ctx, branchID)
}

// ListBranches returns a campaign's branches ordered by creation time.
func (e *Engine) ListBranches(ctx context.Context, campaignID string) ([]branch.Branch, error) {
	return e.registry.List(ctx, campaignID)
}

// AncestryChain returns a branch and its ancestors up to the campaign root.
func (e *Engine) AncestryChain(ctx context.Context, branchID string) ([]branch.Branch, error) {
	return e.registry.AncestryChain(ctx, branchID)
}

// DeleteBranch removes a leaf branch and its versions.
func (e *Engine) DeleteBranch(ctx context.Context, branchID string) error {
	return e.registry.Delete(ctx, branchID)
}

// UpdateBranchMetadata changes a branch's display fields.
func (e *Engine) UpdateBranchMetadata(ctx context.Context, branchID string, update branch.MetadataUpdate) (branch.Branch, error) {
	return e.registry.UpdateMetadata(ctx, branchID, update)
}

// History pages an entity's version intervals on one branch, ascending by
// ValidFrom from afterFrom.
func (e *Engine) History(ctx context.Context, ref entity.Ref, branchID string, afterFrom timeline.Time, limit int) ([]version.Version, error) {
	return e.store.VersionHistory(ctx, ref, branchID, afterFrom, limit)
}
