// Package version defines the immutable snapshot records the store keeps per
// entity, branch, and world-time interval.
package version

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/louisbranch/timeloom/internal/entity"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/timeline"
)

// Version states that an entity had the payload state on one branch for the
// world-time interval [ValidFrom, ValidTo). A nil ValidTo marks the interval
// still current. Versions are never updated or deleted; a newer version
// closes the prior open interval at its own ValidFrom.
type Version struct {
	ID          string
	EntityType  string
	EntityID    string
	BranchID    string
	ValidFrom   timeline.Time
	ValidTo     *timeline.Time
	Payload     []byte
	PayloadHash string
	Sequence    uint64
	CreatedAt   time.Time
	CreatedBy   string
}

// Ref returns the entity reference the version belongs to.
func (v Version) Ref() entity.Ref {
	return entity.Ref{Type: v.EntityType, ID: v.EntityID}
}

// Open reports whether the interval is still current.
func (v Version) Open() bool {
	return v.ValidTo == nil
}

// Contains reports whether at falls inside [ValidFrom, ValidTo).
func (v Version) Contains(at timeline.Time) bool {
	if at < v.ValidFrom {
		return false
	}
	return v.ValidTo == nil || at < *v.ValidTo
}

// HashPayload returns the checksum stored beside each payload, used by the
// verify tool to detect corruption.
func HashPayload(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}

// AppendInput describes one version to append. The store assigns the id,
// sequence, checksum, and creation timestamp.
type AppendInput struct {
	EntityType string
	EntityID   string
	BranchID   string
	ValidFrom  timeline.Time
	Payload    []byte
	CreatedBy  string

	// ExpectedSequence, when set, must match the sequence of the entity's
	// latest version on the branch (zero for a first write). A mismatch
	// means another writer got there first.
	ExpectedSequence *uint64
}

// Ref returns the entity reference the input targets.
func (in AppendInput) Ref() entity.Ref {
	return entity.Ref{Type: in.EntityType, ID: in.EntityID}
}

// Validate checks the input fields the store requires.
func (in AppendInput) Validate() error {
	if err := in.Ref().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(in.BranchID) == "" {
		return apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}
	if !in.ValidFrom.Valid() {
		return apperrors.New(apperrors.CodeWorldTimeInvalid, "valid from precedes world time origin")
	}
	if len(in.Payload) == 0 {
		return apperrors.New(apperrors.CodeSnapshotInvalidValue, "payload is required")
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return apperrors.New(apperrors.CodeUserIDEmpty, "created by is required")
	}
	return nil
}
