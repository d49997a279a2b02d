package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/timeloom/internal/merge"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/snapshot"
	"github.com/louisbranch/timeloom/internal/timeline"
)

// defaultMergeRecordLimit caps a merge audit page when no limit is given.
const defaultMergeRecordLimit = 50

const mergeRecordColumns = "id, source_branch_id, target_branch_id, ancestor_branch_id, world_time, merged_by, merged_at, conflict_count, entities_merged, resolutions, metadata"

// storedResolution is the JSON shape of one resolution in the audit row.
type storedResolution struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Strategy   string         `json:"strategy"`
	Snapshot   map[string]any `json:"snapshot,omitempty"`
}

// AppendMergeRecord inserts one immutable merge audit row.
func (s *Store) AppendMergeRecord(ctx context.Context, record merge.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}

	stored := make([]storedResolution, 0, len(record.Resolutions))
	for _, resolution := range record.Resolutions {
		stored = append(stored, storedResolution{
			EntityType: resolution.EntityType,
			EntityID:   resolution.EntityID,
			Strategy:   string(resolution.Strategy),
			Snapshot:   resolution.Snapshot,
		})
	}
	resolutions, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal merge resolutions: %w", err)
	}

	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal merge metadata: %w", err)
	}

	if _, err := s.db().ExecContext(ctx, `
INSERT INTO merge_records (id, source_branch_id, target_branch_id, ancestor_branch_id, world_time, merged_by, merged_at, conflict_count, entities_merged, resolutions, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.SourceBranchID,
		record.TargetBranchID,
		record.CommonAncestorBranchID,
		int64(record.WorldTime),
		record.MergedBy,
		toMillis(record.MergedAt),
		record.ConflictCount,
		record.EntitiesMergedCount,
		resolutions,
		metadataJSON,
	); err != nil {
		return classifyError("append merge record", err)
	}
	return nil
}

// ListMergeRecords returns the newest merge records targeting a branch.
func (s *Store) ListMergeRecords(ctx context.Context, targetBranchID string, limit int) ([]merge.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	targetBranchID = strings.TrimSpace(targetBranchID)
	if targetBranchID == "" {
		return nil, apperrors.New(apperrors.CodeBranchIDEmpty, "target branch id is required")
	}
	if limit <= 0 {
		limit = defaultMergeRecordLimit
	}

	rows, err := s.db().QueryContext(ctx, `
SELECT `+mergeRecordColumns+`
FROM merge_records
WHERE target_branch_id = ?
ORDER BY merged_at DESC, id
LIMIT ?
`, targetBranchID, limit)
	if err != nil {
		return nil, classifyError("list merge records", err)
	}
	defer rows.Close()

	var out []merge.Record
	for rows.Next() {
		record, err := scanMergeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merge record row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merge record rows: %w", err)
	}
	return out, nil
}

// CountCampaignMergeRecords counts the merges whose target branch belongs
// to the campaign.
func (s *Store) CountCampaignMergeRecords(ctx context.Context, campaignID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return 0, apperrors.New(apperrors.CodeCampaignIDEmpty, "campaign id is required")
	}

	var count int
	row := s.db().QueryRowContext(ctx, `
SELECT COUNT(*)
FROM merge_records m
JOIN branches b ON b.id = m.target_branch_id
WHERE b.campaign_id = ?
`, campaignID)
	if err := row.Scan(&count); err != nil {
		return 0, classifyError("count campaign merge records", err)
	}
	return count, nil
}

func scanMergeRecord(row rowScanner) (merge.Record, error) {
	var (
		record          merge.Record
		worldTime       int64
		mergedAt        int64
		resolutionsJSON []byte
		metadataJSON    []byte
	)
	if err := row.Scan(
		&record.ID,
		&record.SourceBranchID,
		&record.TargetBranchID,
		&record.CommonAncestorBranchID,
		&worldTime,
		&record.MergedBy,
		&mergedAt,
		&record.ConflictCount,
		&record.EntitiesMergedCount,
		&resolutionsJSON,
		&metadataJSON,
	); err != nil {
		return merge.Record{}, err
	}
	record.WorldTime = timeline.Time(worldTime)
	record.MergedAt = fromMillis(mergedAt)

	var stored []storedResolution
	if err := json.Unmarshal(resolutionsJSON, &stored); err != nil {
		return merge.Record{}, fmt.Errorf("unmarshal merge resolutions: %w", err)
	}
	for _, resolution := range stored {
		record.Resolutions = append(record.Resolutions, merge.Resolution{
			EntityType: resolution.EntityType,
			EntityID:   resolution.EntityID,
			Strategy:   merge.Strategy(resolution.Strategy),
			Snapshot:   snapshot.Snapshot(resolution.Snapshot),
		})
	}

	if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
		return merge.Record{}, fmt.Errorf("unmarshal merge metadata: %w", err)
	}
	if len(record.Metadata) == 0 {
		record.Metadata = nil
	}
	return record, nil
}
