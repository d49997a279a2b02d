// Package errors provides structured error handling with gRPC status mapping.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeCampaignIDEmpty  Code = "CAMPAIGN_ID_EMPTY"
	CodeBranchIDEmpty    Code = "BRANCH_ID_EMPTY"
	CodeBranchNameEmpty  Code = "BRANCH_NAME_EMPTY"
	CodeEntityTypeEmpty  Code = "ENTITY_TYPE_EMPTY"
	CodeEntityIDEmpty    Code = "ENTITY_ID_EMPTY"
	CodeVersionIDEmpty   Code = "VERSION_ID_EMPTY"
	CodeUserIDEmpty      Code = "USER_ID_EMPTY"
	CodeWorldTimeInvalid Code = "WORLD_TIME_INVALID"

	// Branch errors
	CodeInvalidParent     Code = "INVALID_PARENT"
	CodeBranchHasChildren Code = "BRANCH_HAS_CHILDREN"
	CodeBranchIsRoot      Code = "BRANCH_IS_ROOT"
	CodeRootBranchExists  Code = "ROOT_BRANCH_EXISTS"
	CodeNoCommonAncestor  Code = "NO_COMMON_ANCESTOR"

	// Snapshot errors
	CodeSnapshotTooDeep      Code = "SNAPSHOT_TOO_DEEP"
	CodeSnapshotInvalidValue Code = "SNAPSHOT_INVALID_VALUE"
	CodeSnapshotCorrupt      Code = "SNAPSHOT_CORRUPT"

	// Merge errors
	CodeMergeSameBranch     Code = "MERGE_SAME_BRANCH"
	CodeResolutionInvalid   Code = "RESOLUTION_INVALID"
	CodeUnresolvedConflicts Code = "UNRESOLVED_CONFLICTS"
	CodeMergeTimeout        Code = "MERGE_TIMEOUT"

	// Fork errors
	CodeForkTimeout Code = "FORK_TIMEOUT"

	// Storage errors
	CodeNotFound               Code = "NOT_FOUND"
	CodeVersionNotFound        Code = "VERSION_NOT_FOUND"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeStoreUnavailable       Code = "STORE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeCampaignIDEmpty,
		CodeBranchIDEmpty,
		CodeBranchNameEmpty,
		CodeEntityTypeEmpty,
		CodeEntityIDEmpty,
		CodeVersionIDEmpty,
		CodeUserIDEmpty,
		CodeWorldTimeInvalid,
		CodeSnapshotTooDeep,
		CodeSnapshotInvalidValue,
		CodeMergeSameBranch,
		CodeResolutionInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInvalidParent,
		CodeBranchHasChildren,
		CodeBranchIsRoot,
		CodeNoCommonAncestor,
		CodeUnresolvedConflicts:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeVersionNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeRootBranchExists:
		return codes.AlreadyExists

	// Aborted - optimistic concurrency losers retry
	case CodeConcurrentModification:
		return codes.Aborted

	// DeadlineExceeded - cancelled mid-operation after rollback
	case CodeForkTimeout,
		CodeMergeTimeout:
		return codes.DeadlineExceeded

	// Unavailable - storage transport failures
	case CodeStoreUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
