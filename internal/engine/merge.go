package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/louisbranch/timeloom/internal/branch"
	"github.com/louisbranch/timeloom/internal/diff"
	"github.com/louisbranch/timeloom/internal/entity"
	"github.com/louisbranch/timeloom/internal/merge"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/snapshot"
	"github.com/louisbranch/timeloom/internal/storage"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// MergeInput describes one three-way merge request.
type MergeInput struct {
	SourceBranchID string
	TargetBranchID string
	WorldTime      timeline.Time
	MergedBy       string
	Resolutions    []merge.Resolution
	Metadata       map[string]string
}

// MergeResult reports the outcome. When Conflicts is non-empty the merge
// wrote nothing and the caller must re-submit with resolutions for every
// listed entity; otherwise Merged lists the entities committed onto the
// target and Record is the appended audit row.
type MergeResult struct {
	Conflicts []merge.EntityConflict
	Merged    []entity.Ref
	Record    *merge.Record
}

// mergePlan is one candidate entity's computed outcome inside the merge
// transaction.
type mergePlan struct {
	ref      entity.Ref
	merged   snapshot.Snapshot
	target   snapshot.Snapshot
	conflict bool
}

// Merge reconciles the source branch into the target branch against their
// lowest common ancestor, as of WorldTime. Disjoint changes combine
// automatically; entities both branches changed incompatibly need a
// caller-supplied resolution. All writes, including the merge audit record,
// commit in one transaction; when any conflicting entity lacks a
// resolution, nothing is written and the full conflict list comes back as
// data.
func (e *Engine) Merge(ctx context.Context, input MergeInput) (MergeResult, error) {
	if err := validateMergeInput(input); err != nil {
		return MergeResult{}, err
	}

	resolutionFor := make(map[entity.Ref]merge.Resolution, len(input.Resolutions))
	for _, resolution := range input.Resolutions {
		if err := resolution.Validate(); err != nil {
			return MergeResult{}, err
		}
		resolutionFor[resolution.Ref()] = resolution
	}

	var (
		result    MergeResult
		committed []version.Version
	)
	err := e.store.InTx(ctx, func(tx storage.Store) error {
		registry := branch.NewRegistry(tx)

		ancestor, err := registry.LowestCommonAncestor(ctx, input.SourceBranchID, input.TargetBranchID)
		if err != nil {
			return err
		}

		candidates, err := tx.ListBranchEntities(ctx, input.SourceBranchID, input.WorldTime)
		if err != nil {
			return err
		}

		var (
			plans         []mergePlan
			conflicts     []merge.EntityConflict
			unresolved    bool
			conflictCount int
		)
		for _, ref := range candidates {
			base, _, err := e.resolveSnapshot(ctx, tx, ref, ancestor.ID, input.WorldTime)
			if err != nil {
				return err
			}
			src, _, err := e.resolveSnapshot(ctx, tx, ref, input.SourceBranchID, input.WorldTime)
			if err != nil {
				return err
			}
			tgt, _, err := e.resolveSnapshot(ctx, tx, ref, input.TargetBranchID, input.WorldTime)
			if err != nil {
				return err
			}

			srcDiff := diff.Compute(base, src)
			tgtDiff := diff.Compute(base, tgt)
			pathConflicts := diff.Conflicts(srcDiff, tgtDiff)

			plan := mergePlan{ref: ref, target: tgt}
			if len(pathConflicts) == 0 {
				plan.merged = diff.Merge(base, srcDiff, tgtDiff)
			} else {
				plan.conflict = true
				conflictCount++
				resolution, ok := resolutionFor[ref]
				if !ok {
					unresolved = true
					conflicts = append(conflicts, merge.EntityConflict{
						EntityType: ref.Type,
						EntityID:   ref.ID,
						Paths:      pathConflicts,
					})
					continue
				}
				resolved, err := applyResolution(resolution, src, tgt)
				if err != nil {
					return err
				}
				plan.merged = resolved
			}
			plans = append(plans, plan)
		}

		if unresolved {
			// No writes have happened; surface every conflicting entity so
			// the caller can prompt for resolutions and retry.
			result = MergeResult{Conflicts: conflicts}
			return nil
		}

		affected := make([]mergePlan, 0, len(plans))
		for _, plan := range plans {
			if snapshot.Equal(plan.merged, plan.target) {
				continue
			}
			affected = append(affected, plan)
		}

		merged := make([]entity.Ref, 0, len(affected))
		for _, plan := range affected {
			payload, err := e.codec.Encode(plan.merged)
			if err != nil {
				return err
			}
			v, err := tx.AppendVersion(ctx, version.AppendInput{
				EntityType: plan.ref.Type,
				EntityID:   plan.ref.ID,
				BranchID:   input.TargetBranchID,
				ValidFrom:  input.WorldTime,
				Payload:    payload,
				CreatedBy:  input.MergedBy,
			})
			if err != nil {
				return err
			}
			committed = append(committed, v)
			merged = append(merged, plan.ref)
		}

		recordID, err := e.newID()
		if err != nil {
			return err
		}
		record := merge.Record{
			ID:                     recordID,
			SourceBranchID:         input.SourceBranchID,
			TargetBranchID:         input.TargetBranchID,
			CommonAncestorBranchID: ancestor.ID,
			WorldTime:              input.WorldTime,
			MergedBy:               input.MergedBy,
			MergedAt:               e.now().UTC(),
			ConflictCount:          conflictCount,
			EntitiesMergedCount:    len(merged),
			Resolutions:            input.Resolutions,
			Metadata:               input.Metadata,
		}
		if err := tx.AppendMergeRecord(ctx, record); err != nil {
			return err
		}

		result = MergeResult{Merged: merged, Record: &record}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return MergeResult{}, apperrors.Wrap(apperrors.CodeMergeTimeout, "merge deadline exceeded, rolled back", err)
		}
		return MergeResult{}, err
	}

	e.publishCommits(committed)
	return result, nil
}

// MergeHistory returns the newest merge records targeting a branch.
func (e *Engine) MergeHistory(ctx context.Context, targetBranchID string, limit int) ([]merge.Record, error) {
	return e.store.ListMergeRecords(ctx, targetBranchID, limit)
}

func validateMergeInput(input MergeInput) error {
	if strings.TrimSpace(input.SourceBranchID) == "" || strings.TrimSpace(input.TargetBranchID) == "" {
		return apperrors.New(apperrors.CodeBranchIDEmpty, "source and target branch ids are required")
	}
	if input.SourceBranchID == input.TargetBranchID {
		return apperrors.WithMetadata(apperrors.CodeMergeSameBranch, "cannot merge a branch into itself", map[string]string{
			"branch_id": input.SourceBranchID,
		})
	}
	if !input.WorldTime.Valid() {
		return apperrors.New(apperrors.CodeWorldTimeInvalid, "merge instant precedes world time origin")
	}
	if strings.TrimSpace(input.MergedBy) == "" {
		return apperrors.New(apperrors.CodeUserIDEmpty, "merged by is required")
	}
	return nil
}

// applyResolution turns one caller-supplied resolution into the entity's
// merged snapshot.
func applyResolution(resolution merge.Resolution, src, tgt snapshot.Snapshot) (snapshot.Snapshot, error) {
	switch resolution.Strategy {
	case merge.KeepSource:
		return src, nil
	case merge.KeepTarget:
		return tgt, nil
	case merge.Custom:
		return snapshot.Normalize(resolution.Snapshot)
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeResolutionInvalid, "unknown resolution strategy", map[string]string{
			"entity":   resolution.Ref().String(),
			"strategy": string(resolution.Strategy),
		})
	}
}
