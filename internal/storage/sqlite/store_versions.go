package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/louisbranch/timeloom/internal/entity"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// appendRetryLimit bounds the internal retry of single-triple append races.
// Multi-entity operations (fork, merge) never retry; their caller does.
const appendRetryLimit = 3

// defaultHistoryLimit caps a history page when the caller passes no limit.
const defaultHistoryLimit = 100

const versionColumns = "id, entity_type, entity_id, branch_id, valid_from, valid_to, payload, payload_hash, sequence, created_at, created_by"

// AppendVersion closes the triple's prior open interval at input.ValidFrom
// and inserts the new row, one atomic unit. Outside an ambient transaction
// the write runs in its own transaction and retries lost races up to
// appendRetryLimit times.
func (s *Store) AppendVersion(ctx context.Context, input version.AppendInput) (version.Version, error) {
	if err := ctx.Err(); err != nil {
		return version.Version{}, err
	}
	if err := s.ready(); err != nil {
		return version.Version{}, err
	}
	if err := input.Validate(); err != nil {
		return version.Version{}, err
	}

	if s.tx != nil {
		return s.appendVersionIn(ctx, s.tx, input)
	}

	var lastErr error
	for attempt := 0; attempt < appendRetryLimit; attempt++ {
		v, err := s.appendVersionOnce(ctx, input)
		if err == nil {
			return v, nil
		}
		if apperrors.CodeOf(err) != apperrors.CodeConcurrentModification {
			return version.Version{}, err
		}
		lastErr = err
	}
	return version.Version{}, lastErr
}

func (s *Store) appendVersionOnce(ctx context.Context, input version.AppendInput) (version.Version, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return version.Version{}, classifyError("begin append tx", err)
	}
	defer tx.Rollback()

	v, err := s.appendVersionIn(ctx, tx, input)
	if err != nil {
		return version.Version{}, err
	}
	if err := tx.Commit(); err != nil {
		return version.Version{}, classifyError("commit append tx", err)
	}
	return v, nil
}

// appendVersionIn performs the close-and-append against q, which must be
// transaction-bound so the latest-row read and both writes are one unit.
func (s *Store) appendVersionIn(ctx context.Context, q querier, input version.AppendInput) (version.Version, error) {
	row := q.QueryRowContext(ctx, `
SELECT id, valid_from, valid_to, sequence
FROM versions
WHERE entity_type = ? AND entity_id = ? AND branch_id = ?
ORDER BY valid_from DESC
LIMIT 1
`, input.EntityType, input.EntityID, input.BranchID)

	var (
		latestID    string
		latestFrom  int64
		latestTo    sql.NullInt64
		latestSeq   uint64
		tripleFound = true
	)
	if err := row.Scan(&latestID, &latestFrom, &latestTo, &latestSeq); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return version.Version{}, classifyError("read latest version", err)
		}
		tripleFound = false
	}

	if input.ExpectedSequence != nil && *input.ExpectedSequence != latestSeq {
		return version.Version{}, apperrors.WithMetadata(apperrors.CodeConcurrentModification, "observed sequence is stale", map[string]string{
			"entity":            input.Ref().String(),
			"branch_id":         input.BranchID,
			"expected_sequence": strconv.FormatUint(*input.ExpectedSequence, 10),
			"latest_sequence":   strconv.FormatUint(latestSeq, 10),
		})
	}

	if tripleFound {
		if input.ValidFrom <= timeline.Time(latestFrom) {
			return version.Version{}, apperrors.WithMetadata(apperrors.CodeConcurrentModification, "valid from does not advance the triple's timeline", map[string]string{
				"entity":            input.Ref().String(),
				"branch_id":         input.BranchID,
				"valid_from":        strconv.FormatInt(int64(input.ValidFrom), 10),
				"latest_valid_from": strconv.FormatInt(latestFrom, 10),
			})
		}
		if !latestTo.Valid {
			result, err := q.ExecContext(ctx, `
UPDATE versions SET valid_to = ? WHERE id = ? AND valid_to IS NULL
`, int64(input.ValidFrom), latestID)
			if err != nil {
				return version.Version{}, classifyError("close open interval", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return version.Version{}, fmt.Errorf("close open interval rows affected: %w", err)
			}
			if affected != 1 {
				return version.Version{}, apperrors.WithMetadata(apperrors.CodeConcurrentModification, "open interval changed underneath the append", map[string]string{
					"entity":    input.Ref().String(),
					"branch_id": input.BranchID,
				})
			}
		}
	}

	versionID, err := s.newID()
	if err != nil {
		return version.Version{}, fmt.Errorf("generate version id: %w", err)
	}

	v := version.Version{
		ID:          versionID,
		EntityType:  strings.TrimSpace(input.EntityType),
		EntityID:    strings.TrimSpace(input.EntityID),
		BranchID:    strings.TrimSpace(input.BranchID),
		ValidFrom:   input.ValidFrom,
		Payload:     input.Payload,
		PayloadHash: version.HashPayload(input.Payload),
		Sequence:    latestSeq + 1,
		CreatedAt:   s.now().UTC(),
		CreatedBy:   strings.TrimSpace(input.CreatedBy),
	}

	if _, err := q.ExecContext(ctx, `
INSERT INTO versions (id, entity_type, entity_id, branch_id, valid_from, valid_to, payload, payload_hash, sequence, created_at, created_by)
VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)
`,
		v.ID,
		v.EntityType,
		v.EntityID,
		v.BranchID,
		int64(v.ValidFrom),
		v.Payload,
		v.PayloadHash,
		int64(v.Sequence),
		toMillis(v.CreatedAt),
		v.CreatedBy,
	); err != nil {
		return version.Version{}, classifyError("append version", err)
	}
	return v, nil
}

// GetVersion fetches one version by id.
func (s *Store) GetVersion(ctx context.Context, versionID string) (version.Version, error) {
	if err := ctx.Err(); err != nil {
		return version.Version{}, err
	}
	if err := s.ready(); err != nil {
		return version.Version{}, err
	}
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return version.Version{}, apperrors.New(apperrors.CodeVersionIDEmpty, "version id is required")
	}

	row := s.db().QueryRowContext(ctx, `
SELECT `+versionColumns+`
FROM versions
WHERE id = ?
`, versionID)

	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return version.Version{}, apperrors.WithMetadata(apperrors.CodeVersionNotFound, "version not found", map[string]string{
				"version_id": versionID,
			})
		}
		return version.Version{}, classifyError("get version", err)
	}
	return v, nil
}

// VersionAt returns the version whose interval contains at on exactly the
// given branch. The ancestry walk belongs to the resolver, not the store.
func (s *Store) VersionAt(ctx context.Context, ref entity.Ref, branchID string, at timeline.Time) (version.Version, error) {
	if err := ctx.Err(); err != nil {
		return version.Version{}, err
	}
	if err := s.ready(); err != nil {
		return version.Version{}, err
	}
	if err := ref.Validate(); err != nil {
		return version.Version{}, err
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return version.Version{}, apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}

	row := s.db().QueryRowContext(ctx, `
SELECT `+versionColumns+`
FROM versions
WHERE entity_type = ? AND entity_id = ? AND branch_id = ?
  AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
ORDER BY valid_from DESC
LIMIT 1
`, ref.Type, ref.ID, branchID, int64(at), int64(at))

	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return version.Version{}, apperrors.WithMetadata(apperrors.CodeNotFound, "no version covers the instant on this branch", map[string]string{
				"entity":    ref.String(),
				"branch_id": branchID,
				"at":        strconv.FormatInt(int64(at), 10),
			})
		}
		return version.Version{}, classifyError("version at", err)
	}
	return v, nil
}

// VersionHistory pages the triple's intervals ascending by ValidFrom.
func (s *Store) VersionHistory(ctx context.Context, ref entity.Ref, branchID string, afterFrom timeline.Time, limit int) ([]version.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return nil, apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.db().QueryContext(ctx, `
SELECT `+versionColumns+`
FROM versions
WHERE entity_type = ? AND entity_id = ? AND branch_id = ? AND valid_from >= ?
ORDER BY valid_from
LIMIT ?
`, ref.Type, ref.ID, branchID, int64(afterFrom), limit)
	if err != nil {
		return nil, classifyError("version history", err)
	}
	defer rows.Close()

	var out []version.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version rows: %w", err)
	}
	return out, nil
}

// ListBranchEntities returns the distinct entities with history on the
// branch itself starting at or before upTo, ordered for deterministic
// iteration by fork and merge.
func (s *Store) ListBranchEntities(ctx context.Context, branchID string, upTo timeline.Time) ([]entity.Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return nil, apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}

	rows, err := s.db().QueryContext(ctx, `
SELECT DISTINCT entity_type, entity_id
FROM versions
WHERE branch_id = ? AND valid_from <= ?
ORDER BY entity_type, entity_id
`, branchID, int64(upTo))
	if err != nil {
		return nil, classifyError("list branch entities", err)
	}
	defer rows.Close()

	var out []entity.Ref
	for rows.Next() {
		var ref entity.Ref
		if err := rows.Scan(&ref.Type, &ref.ID); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity rows: %w", err)
	}
	return out, nil
}

// CountBranchVersions counts the branch's own version rows.
func (s *Store) CountBranchVersions(ctx context.Context, branchID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return 0, apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}

	var count int
	row := s.db().QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE branch_id = ?`, branchID)
	if err := row.Scan(&count); err != nil {
		return 0, classifyError("count branch versions", err)
	}
	return count, nil
}

func scanVersion(row rowScanner) (version.Version, error) {
	var (
		v         version.Version
		validFrom int64
		validTo   sql.NullInt64
		sequence  int64
		createdAt int64
	)
	if err := row.Scan(
		&v.ID,
		&v.EntityType,
		&v.EntityID,
		&v.BranchID,
		&validFrom,
		&validTo,
		&v.Payload,
		&v.PayloadHash,
		&sequence,
		&createdAt,
		&v.CreatedBy,
	); err != nil {
		return version.Version{}, err
	}
	v.ValidFrom = timeline.Time(validFrom)
	v.ValidTo = fromNullTime(validTo)
	v.Sequence = uint64(sequence)
	v.CreatedAt = fromMillis(createdAt)
	return v, nil
}
