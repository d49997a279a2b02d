package branch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/platform/id"
	"github.com/louisbranch/timeloom/internal/timeline"
)

// maxAncestryDepth guards ancestry walks against corrupted parent links.
const maxAncestryDepth = 512

// Store is the persistence the registry needs. The sqlite store satisfies it.
type Store interface {
	CreateBranch(ctx context.Context, b Branch) error
	GetBranch(ctx context.Context, branchID string) (Branch, error)
	ListBranches(ctx context.Context, campaignID string) ([]Branch, error)
	UpdateBranch(ctx context.Context, b Branch) error
	CountChildBranches(ctx context.Context, branchID string) (int, error)
	DeleteBranch(ctx context.Context, branchID string) error
}

// MetadataUpdate carries the optional display fields of a branch. Nil fields
// are left unchanged; structural fields (parent, divergence) never change
// after creation.
type MetadataUpdate struct {
	Name     *string
	Color    *string
	IsPinned *bool
	Tags     []string
}

// Registry applies forest rules on top of a branch store.
type Registry struct {
	store Store
	now   func() time.Time
	newID func() (string, error)
}

// NewRegistry returns a registry over store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store: store,
		now:   time.Now,
		newID: id.NewID,
	}
}

// CreateRoot creates a campaign's root branch. It is called once per
// campaign, at campaign creation, by the external campaign service.
func (r *Registry) CreateRoot(ctx context.Context, campaignID, name string, epoch timeline.Time) (Branch, error) {
	if strings.TrimSpace(campaignID) == "" {
		return Branch{}, apperrors.New(apperrors.CodeCampaignIDEmpty, "campaign id is required")
	}
	if strings.TrimSpace(name) == "" {
		return Branch{}, apperrors.New(apperrors.CodeBranchNameEmpty, "branch name is required")
	}
	if !epoch.Valid() {
		return Branch{}, apperrors.New(apperrors.CodeWorldTimeInvalid, "campaign epoch precedes world time origin")
	}

	branchID, err := r.newID()
	if err != nil {
		return Branch{}, fmt.Errorf("generate branch id: %w", err)
	}
	b := Branch{
		ID:         branchID,
		CampaignID: strings.TrimSpace(campaignID),
		Name:       strings.TrimSpace(name),
		DivergedAt: epoch,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.store.CreateBranch(ctx, b); err != nil {
		return Branch{}, err
	}
	return b, nil
}

// Create adds a child branch diverging from parentID at divergedAt. Only the
// fork engine creates non-root branches.
func (r *Registry) Create(ctx context.Context, parentID, name string, divergedAt timeline.Time) (Branch, error) {
	if strings.TrimSpace(parentID) == "" {
		return Branch{}, apperrors.New(apperrors.CodeBranchIDEmpty, "parent branch id is required")
	}
	if strings.TrimSpace(name) == "" {
		return Branch{}, apperrors.New(apperrors.CodeBranchNameEmpty, "branch name is required")
	}
	if !divergedAt.Valid() {
		return Branch{}, apperrors.New(apperrors.CodeWorldTimeInvalid, "divergence precedes world time origin")
	}

	parent, err := r.store.GetBranch(ctx, parentID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return Branch{}, apperrors.WrapWithMetadata(apperrors.CodeInvalidParent, "parent branch not found", map[string]string{
				"parent_id": parentID,
			}, err)
		}
		return Branch{}, err
	}
	if divergedAt < parent.DivergedAt {
		return Branch{}, apperrors.WithMetadata(apperrors.CodeInvalidParent, "divergence precedes parent history", map[string]string{
			"parent_id":          parent.ID,
			"parent_diverged_at": strconv.FormatInt(int64(parent.DivergedAt), 10),
			"diverged_at":        strconv.FormatInt(int64(divergedAt), 10),
		})
	}

	branchID, err := r.newID()
	if err != nil {
		return Branch{}, fmt.Errorf("generate branch id: %w", err)
	}
	b := Branch{
		ID:         branchID,
		CampaignID: parent.CampaignID,
		ParentID:   parent.ID,
		Name:       strings.TrimSpace(name),
		DivergedAt: divergedAt,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.store.CreateBranch(ctx, b); err != nil {
		return Branch{}, err
	}
	return b, nil
}

// Get fetches one branch.
func (r *Registry) Get(ctx context.Context, branchID string) (Branch, error) {
	if strings.TrimSpace(branchID) == "" {
		return Branch{}, apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}
	return r.store.GetBranch(ctx, branchID)
}

// List returns a campaign's branches ordered by creation time.
func (r *Registry) List(ctx context.Context, campaignID string) ([]Branch, error) {
	if strings.TrimSpace(campaignID) == "" {
		return nil, apperrors.New(apperrors.CodeCampaignIDEmpty, "campaign id is required")
	}
	return r.store.ListBranches(ctx, campaignID)
}

// AncestryChain returns the branch and its ancestors, nearest first, ending
// at the campaign root. The walk is iterative and bounded.
func (r *Registry) AncestryChain(ctx context.Context, branchID string) ([]Branch, error) {
	b, err := r.Get(ctx, branchID)
	if err != nil {
		return nil, err
	}

	chain := []Branch{b}
	for !b.IsRoot() {
		if len(chain) >= maxAncestryDepth {
			return nil, fmt.Errorf("branch %s ancestry exceeds %d levels", branchID, maxAncestryDepth)
		}
		b, err = r.store.GetBranch(ctx, b.ParentID)
		if err != nil {
			return nil, fmt.Errorf("walk ancestry of branch %s: %w", branchID, err)
		}
		chain = append(chain, b)
	}
	return chain, nil
}

// Depth returns how many ancestors separate the branch from its campaign
// root; the root itself has depth zero.
func (r *Registry) Depth(ctx context.Context, branchID string) (int, error) {
	chain, err := r.AncestryChain(ctx, branchID)
	if err != nil {
		return 0, err
	}
	return len(chain) - 1, nil
}

// LowestCommonAncestor returns the first branch shared by both ancestry
// chains. Within one campaign a common ancestor always exists; branches of
// different campaigns have none.
func (r *Registry) LowestCommonAncestor(ctx context.Context, branchID, otherID string) (Branch, error) {
	chain, err := r.AncestryChain(ctx, branchID)
	if err != nil {
		return Branch{}, err
	}
	otherChain, err := r.AncestryChain(ctx, otherID)
	if err != nil {
		return Branch{}, err
	}

	if chain[0].CampaignID != otherChain[0].CampaignID {
		return Branch{}, apperrors.WithMetadata(apperrors.CodeNoCommonAncestor, "branches belong to different campaigns", map[string]string{
			"branch_id":      chain[0].ID,
			"other_id":       otherChain[0].ID,
			"campaign_id":    chain[0].CampaignID,
			"other_campaign": otherChain[0].CampaignID,
		})
	}

	ancestors := make(map[string]struct{}, len(chain))
	for _, b := range chain {
		ancestors[b.ID] = struct{}{}
	}
	for _, b := range otherChain {
		if _, ok := ancestors[b.ID]; ok {
			return b, nil
		}
	}
	return Branch{}, apperrors.WithMetadata(apperrors.CodeNoCommonAncestor, "branches share no ancestor", map[string]string{
		"branch_id": branchID,
		"other_id":  otherID,
	})
}

// Delete removes a leaf branch. Roots and branches with children are refused.
func (r *Registry) Delete(ctx context.Context, branchID string) error {
	b, err := r.Get(ctx, branchID)
	if err != nil {
		return err
	}
	if b.IsRoot() {
		return apperrors.WithMetadata(apperrors.CodeBranchIsRoot, "root branch cannot be deleted", map[string]string{
			"branch_id": b.ID,
		})
	}
	children, err := r.store.CountChildBranches(ctx, b.ID)
	if err != nil {
		return err
	}
	if children > 0 {
		return apperrors.WithMetadata(apperrors.CodeBranchHasChildren, "branch has child branches", map[string]string{
			"branch_id":   b.ID,
			"child_count": strconv.Itoa(children),
		})
	}
	return r.store.DeleteBranch(ctx, b.ID)
}

// UpdateMetadata changes a branch's display fields.
func (r *Registry) UpdateMetadata(ctx context.Context, branchID string, update MetadataUpdate) (Branch, error) {
	b, err := r.Get(ctx, branchID)
	if err != nil {
		return Branch{}, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return Branch{}, apperrors.New(apperrors.CodeBranchNameEmpty, "branch name is required")
		}
		b.Name = name
	}
	if update.Color != nil {
		b.Color = strings.TrimSpace(*update.Color)
	}
	if update.IsPinned != nil {
		b.IsPinned = *update.IsPinned
	}
	if update.Tags != nil {
		b.Tags = NormalizeTags(update.Tags)
	}

	if err := r.store.UpdateBranch(ctx, b); err != nil {
		return Branch{}, err
	}
	return b, nil
}
