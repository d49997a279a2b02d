package engine

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/snapshot"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// AppendInput is one ordinary entity write from an external service.
type AppendInput struct {
	EntityType string
	EntityID   string
	BranchID   string
	WorldTime  timeline.Time
	State      snapshot.Snapshot
	UpdatedBy  string

	// ExpectedSequence, when set, is the sequence the writer last observed
	// for this entity on this branch; a mismatch aborts the write.
	ExpectedSequence *uint64
}

// AppendEntityVersion records a new state for an entity on a branch,
// closing the entity's prior interval at WorldTime.
func (e *Engine) AppendEntityVersion(ctx context.Context, input AppendInput) (version.Version, error) {
	if strings.TrimSpace(input.UpdatedBy) == "" {
		return version.Version{}, apperrors.New(apperrors.CodeUserIDEmpty, "updated by is required")
	}
	if input.State == nil {
		return version.Version{}, apperrors.New(apperrors.CodeSnapshotInvalidValue, "entity state is required")
	}

	// Surface an unknown branch as NotFound before the store turns it into
	// a foreign-key violation.
	if _, err := e.registry.Get(ctx, input.BranchID); err != nil {
		return version.Version{}, err
	}

	payload, err := e.codec.Encode(input.State)
	if err != nil {
		return version.Version{}, err
	}

	v, err := e.store.AppendVersion(ctx, version.AppendInput{
		EntityType:       input.EntityType,
		EntityID:         input.EntityID,
		BranchID:         input.BranchID,
		ValidFrom:        input.WorldTime,
		Payload:          payload,
		CreatedBy:        input.UpdatedBy,
		ExpectedSequence: input.ExpectedSequence,
	})
	if err != nil {
		return version.Version{}, err
	}

	e.publishCommits([]version.Version{v})
	return v, nil
}
