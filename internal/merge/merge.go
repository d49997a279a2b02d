// Package merge defines the records and resolution inputs of three-way
// branch merges. The merge algorithm itself lives in the engine; this
// package owns the durable audit shape and the caller-supplied conflict
// resolutions.
package merge

import (
	"strings"
	"time"

	"github.com/louisbranch/timeloom/internal/diff"
	"github.com/louisbranch/timeloom/internal/entity"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/snapshot"
	"github.com/louisbranch/timeloom/internal/timeline"
)

// Strategy selects how a conflicting entity is resolved.
type Strategy string

const (
	// KeepSource applies the source branch state wholesale.
	KeepSource Strategy = "keep_source"
	// KeepTarget applies the target branch state wholesale.
	KeepTarget Strategy = "keep_target"
	// Custom applies a caller-supplied snapshot.
	Custom Strategy = "custom"
)

// Resolution answers one conflicting entity. Snapshot is required for the
// Custom strategy and ignored otherwise.
type Resolution struct {
	EntityType string
	EntityID   string
	Strategy   Strategy
	Snapshot   snapshot.Snapshot
}

// Ref returns the entity the resolution targets.
func (r Resolution) Ref() entity.Ref {
	return entity.Ref{Type: r.EntityType, ID: r.EntityID}
}

// Validate checks the resolution fields.
func (r Resolution) Validate() error {
	if err := r.Ref().Validate(); err != nil {
		return err
	}
	switch r.Strategy {
	case KeepSource, KeepTarget:
		return nil
	case Custom:
		if r.Snapshot == nil {
			return apperrors.WithMetadata(apperrors.CodeResolutionInvalid, "custom resolution requires a snapshot", map[string]string{
				"entity": r.Ref().String(),
			})
		}
		return snapshot.Validate(r.Snapshot)
	default:
		return apperrors.WithMetadata(apperrors.CodeResolutionInvalid, "unknown resolution strategy", map[string]string{
			"entity":   r.Ref().String(),
			"strategy": string(r.Strategy),
		})
	}
}

// EntityConflict reports one entity both branches changed incompatibly,
// with the field-level detail a caller needs to prompt for a resolution.
type EntityConflict struct {
	EntityType string
	EntityID   string
	Paths      []diff.PathConflict
}

// Ref returns the conflicting entity's reference.
func (c EntityConflict) Ref() entity.Ref {
	return entity.Ref{Type: c.EntityType, ID: c.EntityID}
}

// Record is the immutable audit row appended once per completed merge.
type Record struct {
	ID                     string
	SourceBranchID         string
	TargetBranchID         string
	CommonAncestorBranchID string
	WorldTime              timeline.Time
	MergedBy               string
	MergedAt               time.Time
	ConflictCount          int
	EntitiesMergedCount    int
	Resolutions            []Resolution
	Metadata               map[string]string
}

// Validate checks the record fields the store requires.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return apperrors.New(apperrors.CodeVersionIDEmpty, "merge record id is required")
	}
	if strings.TrimSpace(r.SourceBranchID) == "" || strings.TrimSpace(r.TargetBranchID) == "" || strings.TrimSpace(r.CommonAncestorBranchID) == "" {
		return apperrors.New(apperrors.CodeBranchIDEmpty, "merge record branch ids are required")
	}
	if !r.WorldTime.Valid() {
		return apperrors.New(apperrors.CodeWorldTimeInvalid, "merge world time precedes world time origin")
	}
	if strings.TrimSpace(r.MergedBy) == "" {
		return apperrors.New(apperrors.CodeUserIDEmpty, "merged by is required")
	}
	return nil
}
