package engine

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/louisbranch/timeloom/internal/branch"
	"github.com/louisbranch/timeloom/internal/entity"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/storage"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// ForkInput names the branch to fork and the divergence instant.
type ForkInput struct {
	SourceBranchID string
	Name           string
	DivergedAt     timeline.Time
	ForkedBy       string
}

// ForkResult is the created branch and the number of versions materialized
// onto it.
type ForkResult struct {
	Branch             branch.Branch
	CopiedVersionCount int
}

// Fork creates a new branch under SourceBranchID and eagerly materializes
// every entity resolvable on the source at DivergedAt as the new branch's
// own initial history. The branch row and all materialized versions commit
// in one transaction; a concurrent reader sees the fork entirely or not at
// all. Fork does not retry lost transaction races.
func (e *Engine) Fork(ctx context.Context, input ForkInput) (ForkResult, error) {
	if strings.TrimSpace(input.ForkedBy) == "" {
		return ForkResult{}, apperrors.New(apperrors.CodeUserIDEmpty, "forked by is required")
	}

	var (
		result    ForkResult
		committed []version.Version
	)
	err := e.store.InTx(ctx, func(tx storage.Store) error {
		registry := branch.NewRegistry(tx)

		newBranch, err := registry.Create(ctx, input.SourceBranchID, input.Name, input.DivergedAt)
		if err != nil {
			return err
		}

		refs, err := ancestryEntities(ctx, tx, registry, input.SourceBranchID, input.DivergedAt)
		if err != nil {
			return err
		}

		for _, ref := range refs {
			v, err := resolveVersion(ctx, tx, ref, input.SourceBranchID, input.DivergedAt)
			if err != nil {
				if apperrors.CodeOf(err) == apperrors.CodeNotFound {
					continue
				}
				return err
			}
			materialized, err := tx.AppendVersion(ctx, version.AppendInput{
				EntityType: ref.Type,
				EntityID:   ref.ID,
				BranchID:   newBranch.ID,
				ValidFrom:  input.DivergedAt,
				Payload:    v.Payload,
				CreatedBy:  input.ForkedBy,
			})
			if err != nil {
				return err
			}
			committed = append(committed, materialized)
		}

		result = ForkResult{Branch: newBranch, CopiedVersionCount: len(committed)}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ForkResult{}, apperrors.Wrap(apperrors.CodeForkTimeout, "fork deadline exceeded, rolled back", err)
		}
		return ForkResult{}, err
	}

	e.publishCommits(committed)
	return result, nil
}

// ancestryEntities unions the entities with history at or before upTo on
// any branch of branchID's ancestry chain, sorted for deterministic
// materialization and merge order.
func ancestryEntities(ctx context.Context, store storage.Store, registry *branch.Registry, branchID string, upTo timeline.Time) ([]entity.Ref, error) {
	chain, err := registry.AncestryChain(ctx, branchID)
	if err != nil {
		return nil, err
	}

	seen := make(map[entity.Ref]struct{})
	var refs []entity.Ref
	for _, ancestor := range chain {
		entities, err := store.ListBranchEntities(ctx, ancestor.ID, upTo)
		if err != nil {
			return nil, err
		}
		for _, ref := range entities {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return refs[i].Type < refs[j].Type
		}
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}
