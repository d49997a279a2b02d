package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/louisbranch/timeloom/internal/entity"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/snapshot"
	"github.com/louisbranch/timeloom/internal/storage"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// resolveDepthLimit guards the ancestry walk against corrupted parent links.
const resolveDepthLimit = 512

// ResolvedState is an entity's authoritative state at one instant on one
// branch: the decoded snapshot plus the version row it came from.
type ResolvedState struct {
	Snapshot snapshot.Snapshot
	Version  version.Version
}

// Resolve returns the entity's state as of at on branchID, consulting
// ancestor branches for instants before the branch diverged.
func (e *Engine) Resolve(ctx context.Context, ref entity.Ref, branchID string, at timeline.Time) (ResolvedState, error) {
	v, err := resolveVersion(ctx, e.store, ref, branchID, at)
	if err != nil {
		return ResolvedState{}, err
	}
	state, err := e.codec.Decode(v.Payload)
	if err != nil {
		return ResolvedState{}, err
	}
	return ResolvedState{Snapshot: state, Version: v}, nil
}

// resolveVersion walks the branch ancestry for the version covering at.
// Starting at branchID: a version on the branch itself wins; otherwise the
// walk moves to the parent only for instants before the branch's own
// divergence, since a branch never inherits post-divergence parent history.
func resolveVersion(ctx context.Context, store storage.Store, ref entity.Ref, branchID string, at timeline.Time) (version.Version, error) {
	if err := ref.Validate(); err != nil {
		return version.Version{}, err
	}
	if !at.Valid() {
		return version.Version{}, apperrors.New(apperrors.CodeWorldTimeInvalid, "instant precedes world time origin")
	}

	b, err := store.GetBranch(ctx, branchID)
	if err != nil {
		return version.Version{}, err
	}

	for depth := 0; depth < resolveDepthLimit; depth++ {
		v, err := store.VersionAt(ctx, ref, b.ID, at)
		if err == nil {
			return v, nil
		}
		if apperrors.CodeOf(err) != apperrors.CodeNotFound {
			return version.Version{}, err
		}
		if b.IsRoot() || at >= b.DivergedAt {
			return version.Version{}, apperrors.WithMetadata(apperrors.CodeNotFound, "entity is absent at this instant", map[string]string{
				"entity":    ref.String(),
				"branch_id": branchID,
				"at":        strconv.FormatInt(int64(at), 10),
			})
		}
		b, err = store.GetBranch(ctx, b.ParentID)
		if err != nil {
			return version.Version{}, fmt.Errorf("walk ancestry of branch %s: %w", branchID, err)
		}
	}
	return version.Version{}, fmt.Errorf("branch %s ancestry exceeds %d levels", branchID, resolveDepthLimit)
}

// resolveSnapshot is resolveVersion plus payload decoding, with absence
// mapped to an empty snapshot for diffing.
func (e *Engine) resolveSnapshot(ctx context.Context, store storage.Store, ref entity.Ref, branchID string, at timeline.Time) (snapshot.Snapshot, bool, error) {
	v, err := resolveVersion(ctx, store, ref, branchID, at)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return snapshot.Snapshot{}, false, nil
		}
		return nil, false, err
	}
	state, err := e.codec.Decode(v.Payload)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}
