// Package storage defines the persistence interfaces of the versioning
// engine: branches, version intervals, and merge records. The sqlite
// subpackage implements them; the engine depends only on these interfaces.
package storage

import (
	"context"

	"github.com/louisbranch/timeloom/internal/branch"
	"github.com/louisbranch/timeloom/internal/entity"
	"github.com/louisbranch/timeloom/internal/merge"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// BranchStore persists the campaign branch forest. It matches the interface
// the branch registry consumes.
type BranchStore interface {
	CreateBranch(ctx context.Context, b branch.Branch) error
	GetBranch(ctx context.Context, branchID string) (branch.Branch, error)
	ListBranches(ctx context.Context, campaignID string) ([]branch.Branch, error)
	UpdateBranch(ctx context.Context, b branch.Branch) error
	CountChildBranches(ctx context.Context, branchID string) (int, error)
	DeleteBranch(ctx context.Context, branchID string) error
}

// VersionStore persists the append-only version intervals.
type VersionStore interface {
	// AppendVersion closes the triple's prior open interval at
	// input.ValidFrom and inserts the new row, atomically. The store
	// assigns id, sequence, checksum, and creation time.
	AppendVersion(ctx context.Context, input version.AppendInput) (version.Version, error)

	// GetVersion fetches one version by id.
	GetVersion(ctx context.Context, versionID string) (version.Version, error)

	// VersionAt returns the version whose interval contains at on exactly
	// that branch; no ancestry walk.
	VersionAt(ctx context.Context, ref entity.Ref, branchID string, at timeline.Time) (version.Version, error)

	// VersionHistory pages the triple's versions ascending by ValidFrom,
	// starting at the first interval whose ValidFrom is at or after
	// afterFrom; a restart passes the prior page's last ValidFrom plus one.
	VersionHistory(ctx context.Context, ref entity.Ref, branchID string, afterFrom timeline.Time, limit int) ([]version.Version, error)

	// ListBranchEntities returns the distinct entities with history on the
	// branch itself whose earliest interval starts at or before upTo.
	ListBranchEntities(ctx context.Context, branchID string, upTo timeline.Time) ([]entity.Ref, error)

	// CountBranchVersions counts the branch's own version rows.
	CountBranchVersions(ctx context.Context, branchID string) (int, error)
}

// MergeStore persists the append-only merge audit.
type MergeStore interface {
	AppendMergeRecord(ctx context.Context, record merge.Record) error
	ListMergeRecords(ctx context.Context, targetBranchID string, limit int) ([]merge.Record, error)
	CountCampaignMergeRecords(ctx context.Context, campaignID string) (int, error)
}

// Store bundles the engine's persistence. InTx runs fn against a
// transaction-bound view of the same store: every read and write fn makes
// shares one transaction, committed when fn returns nil and rolled back
// otherwise. Fork and merge run entirely inside InTx so concurrent readers
// see either none or all of their writes.
type Store interface {
	BranchStore
	VersionStore
	MergeStore

	InTx(ctx context.Context, fn func(Store) error) error
}
