package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/timeloom/internal/branch"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/timeline"
)

const branchColumns = "id, campaign_id, parent_id, name, diverged_at, is_pinned, color, tags, created_at"

// CreateBranch inserts one branch row. The schema's partial unique index
// keeps a campaign to a single root.
func (s *Store) CreateBranch(ctx context.Context, b branch.Branch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(b.ID) == "" {
		return apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}
	if strings.TrimSpace(b.CampaignID) == "" {
		return apperrors.New(apperrors.CodeCampaignIDEmpty, "campaign id is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		return apperrors.New(apperrors.CodeBranchNameEmpty, "branch name is required")
	}

	tags, err := json.Marshal(branch.NormalizeTags(b.Tags))
	if err != nil {
		return fmt.Errorf("marshal branch tags: %w", err)
	}

	var parentID sql.NullString
	if b.ParentID != "" {
		parentID = sql.NullString{String: b.ParentID, Valid: true}
	}

	_, err = s.db().ExecContext(ctx, `
INSERT INTO branches (id, campaign_id, parent_id, name, diverged_at, is_pinned, color, tags, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		b.ID,
		b.CampaignID,
		parentID,
		b.Name,
		int64(b.DivergedAt),
		boolToInt(b.IsPinned),
		b.Color,
		string(tags),
		toMillis(b.CreatedAt),
	)
	if err != nil {
		if b.ParentID == "" && isConstraintError(err) {
			return apperrors.WrapWithMetadata(apperrors.CodeRootBranchExists, "campaign already has a root branch", map[string]string{
				"campaign_id": b.CampaignID,
			}, err)
		}
		return classifyError("create branch", err)
	}
	return nil
}

// GetBranch fetches one branch by id.
func (s *Store) GetBranch(ctx context.Context, branchID string) (branch.Branch, error) {
	if err := ctx.Err(); err != nil {
		return branch.Branch{}, err
	}
	if err := s.ready(); err != nil {
		return branch.Branch{}, err
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return branch.Branch{}, apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}

	row := s.db().QueryRowContext(ctx, `
SELECT `+branchColumns+`
FROM branches
WHERE id = ?
`, branchID)

	b, err := scanBranch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return branch.Branch{}, apperrors.WithMetadata(apperrors.CodeNotFound, "branch not found", map[string]string{
				"branch_id": branchID,
			})
		}
		return branch.Branch{}, classifyError("get branch", err)
	}
	return b, nil
}

// ListBranches returns a campaign's branches ordered by creation time.
func (s *Store) ListBranches(ctx context.Context, campaignID string) ([]branch.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, apperrors.New(apperrors.CodeCampaignIDEmpty, "campaign id is required")
	}

	rows, err := s.db().QueryContext(ctx, `
SELECT `+branchColumns+`
FROM branches
WHERE campaign_id = ?
ORDER BY created_at, id
`, campaignID)
	if err != nil {
		return nil, classifyError("list branches", err)
	}
	defer rows.Close()

	var out []branch.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branch rows: %w", err)
	}
	return out, nil
}

// UpdateBranch rewrites a branch's display fields. Parent and divergence
// are immutable after creation and deliberately absent from the statement.
func (s *Store) UpdateBranch(ctx context.Context, b branch.Branch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(b.ID) == "" {
		return apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		return apperrors.New(apperrors.CodeBranchNameEmpty, "branch name is required")
	}

	tags, err := json.Marshal(branch.NormalizeTags(b.Tags))
	if err != nil {
		return fmt.Errorf("marshal branch tags: %w", err)
	}

	result, err := s.db().ExecContext(ctx, `
UPDATE branches
SET name = ?, is_pinned = ?, color = ?, tags = ?
WHERE id = ?
`,
		b.Name,
		boolToInt(b.IsPinned),
		b.Color,
		string(tags),
		b.ID,
	)
	if err != nil {
		return classifyError("update branch", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update branch rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "branch not found", map[string]string{
			"branch_id": b.ID,
		})
	}
	return nil
}

// CountChildBranches counts the branches whose parent is branchID.
func (s *Store) CountChildBranches(ctx context.Context, branchID string) (int, error) {
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
	row := s.db().QueryRowContext(ctx, `SELECT COUNT(*) FROM branches WHERE parent_id = ?`, branchID)
	if err := row.Scan(&count); err != nil {
		return 0, classifyError("count child branches", err)
	}
	return count, nil
}

// DeleteBranch removes one branch row; the schema cascades the branch's
// versions away with it. Forest rules (root, children) are the registry's
// job, not the store's.
func (s *Store) DeleteBranch(ctx context.Context, branchID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return apperrors.New(apperrors.CodeBranchIDEmpty, "branch id is required")
	}

	result, err := s.db().ExecContext(ctx, `DELETE FROM branches WHERE id = ?`, branchID)
	if err != nil {
		return classifyError("delete branch", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete branch rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "branch not found", map[string]string{
			"branch_id": branchID,
		})
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBranch(row rowScanner) (branch.Branch, error) {
	var (
		b          branch.Branch
		parentID   sql.NullString
		divergedAt int64
		isPinned   int
		tags       string
		createdAt  int64
	)
	if err := row.Scan(
		&b.ID,
		&b.CampaignID,
		&parentID,
		&b.Name,
		&divergedAt,
		&isPinned,
		&b.Color,
		&tags,
		&createdAt,
	); err != nil {
		return branch.Branch{}, err
	}
	if parentID.Valid {
		b.ParentID = parentID.String
	}
	b.DivergedAt = timeline.Time(divergedAt)
	b.IsPinned = isPinned != 0
	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
		return branch.Branch{}, fmt.Errorf("unmarshal branch tags: %w", err)
	}
	if len(b.Tags) == 0 {
		b.Tags = nil
	}
	b.CreatedAt = fromMillis(createdAt)
	return b, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
