package engine

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// CherryPickInput names one version to copy onto another branch.
type CherryPickInput struct {
	SourceBranchID string
	VersionID      string
	TargetBranchID string
	WorldTime      timeline.Time
	PickedBy       string
}

// CherryPick copies a single version's payload onto the target branch as a
// new interval opening at WorldTime. The target's current state is
// overwritten without conflict detection and no merge record is created.
func (e *Engine) CherryPick(ctx context.Context, input CherryPickInput) (version.Version, error) {
	if strings.TrimSpace(input.SourceBranchID) == "" || strings.TrimSpace(input.TargetBranchID) == "" {
		return version.Version{}, apperrors.New(apperrors.CodeBranchIDEmpty, "source and target branch ids are required")
	}
	if strings.TrimSpace(input.PickedBy) == "" {
		return version.Version{}, apperrors.New(apperrors.CodeUserIDEmpty, "picked by is required")
	}

	picked, err := e.store.GetVersion(ctx, input.VersionID)
	if err != nil {
		return version.Version{}, err
	}
	if picked.BranchID != input.SourceBranchID {
		return version.Version{}, apperrors.WithMetadata(apperrors.CodeVersionNotFound, "version does not belong to the source branch", map[string]string{
			"version_id":       input.VersionID,
			"source_branch_id": input.SourceBranchID,
			"actual_branch_id": picked.BranchID,
		})
	}
	if _, err := e.registry.Get(ctx, input.TargetBranchID); err != nil {
		return version.Version{}, err
	}

	// Decode as a payload sanity check; the copy carries the exact bytes.
	if _, err := e.codec.Decode(picked.Payload); err != nil {
		return version.Version{}, err
	}

	v, err := e.store.AppendVersion(ctx, version.AppendInput{
		EntityType: picked.EntityType,
		EntityID:   picked.EntityID,
		BranchID:   input.TargetBranchID,
		ValidFrom:  input.WorldTime,
		Payload:    picked.Payload,
		CreatedBy:  input.PickedBy,
	})
	if err != nil {
		return version.Version{}, err
	}

	e.publishCommits([]version.Version{v})
	return v, nil
}
