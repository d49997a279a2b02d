package engine

import (
	"context"
	"fmt"

	"github.com/louisbranch/timeloom/internal/entity"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

// verifyPageSize bounds each history page during an interval scan.
const verifyPageSize = 200

// VerifyIssue is one invariant violation found by a branch scan.
type VerifyIssue struct {
	Entity    entity.Ref
	VersionID string
	Problem   string
}

// VerifyReport summarizes an interval and payload integrity scan of one
// branch's own version history.
type VerifyReport struct {
	BranchID        string
	EntitiesScanned int
	VersionsScanned int
	Issues          []VerifyIssue
}

// Clean reports whether the scan found no violations.
func (r VerifyReport) Clean() bool {
	return len(r.Issues) == 0
}

// VerifyBranchIntervals scans every entity with history on the branch and
// checks the interval invariants (ascending, non-overlapping, contiguous,
// at most one trailing open interval) plus payload checksums and
// decodability.
func (e *Engine) VerifyBranchIntervals(ctx context.Context, branchID string) (VerifyReport, error) {
	if _, err := e.registry.Get(ctx, branchID); err != nil {
		return VerifyReport{}, err
	}

	refs, err := e.store.ListBranchEntities(ctx, branchID, timeline.Max)
	if err != nil {
		return VerifyReport{}, err
	}

	report := VerifyReport{BranchID: branchID}
	for _, ref := range refs {
		report.EntitiesScanned++
		var prev *version.Version
		afterFrom := timeline.Epoch
		for {
			page, err := e.store.VersionHistory(ctx, ref, branchID, afterFrom, verifyPageSize)
			if err != nil {
				return VerifyReport{}, err
			}
			if len(page) == 0 {
				break
			}
			for i := range page {
				v := page[i]
				report.VersionsScanned++
				report.Issues = append(report.Issues, e.checkVersion(ref, prev, v)...)
				prev = &page[i]
			}
			afterFrom = page[len(page)-1].ValidFrom + 1
			if len(page) < verifyPageSize {
				break
			}
		}
	}
	return report, nil
}

// checkVersion validates one version against its predecessor in ValidFrom
// order.
func (e *Engine) checkVersion(ref entity.Ref, prev *version.Version, v version.Version) []VerifyIssue {
	var issues []VerifyIssue
	issue := func(format string, args ...any) {
		issues = append(issues, VerifyIssue{
			Entity:    ref,
			VersionID: v.ID,
			Problem:   fmt.Sprintf(format, args...),
		})
	}

	if prev != nil {
		if prev.ValidTo == nil {
			issue("follows an open interval (version %s)", prev.ID)
		} else if *prev.ValidTo != v.ValidFrom {
			issue("gap or overlap after version %s: prior closes at %d, interval opens at %d", prev.ID, *prev.ValidTo, v.ValidFrom)
		}
	}
	if v.ValidTo != nil && *v.ValidTo <= v.ValidFrom {
		issue("interval is empty or inverted: [%d, %d)", v.ValidFrom, *v.ValidTo)
	}
	if got := version.HashPayload(v.Payload); got != v.PayloadHash {
		issue("payload checksum mismatch: stored %s, computed %s", v.PayloadHash, got)
	} else if _, err := e.codec.Decode(v.Payload); err != nil {
		issue("payload does not decode: %v", err)
	}
	return issues
}

// Stats summarizes one campaign's stored footprint.
type Stats struct {
	CampaignID   string
	Branches     int
	Versions     int
	MergeRecords int
}

// CampaignStats counts a campaign's branches, versions, and merge records.
func (e *Engine) CampaignStats(ctx context.Context, campaignID string) (Stats, error) {
	branches, err := e.registry.List(ctx, campaignID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{CampaignID: campaignID, Branches: len(branches)}
	for _, b := range branches {
		count, err := e.store.CountBranchVersions(ctx, b.ID)
		if err != nil {
			return Stats{}, err
		}
		stats.Versions += count
	}

	merges, err := e.store.CountCampaignMergeRecords(ctx, campaignID)
	if err != nil {
		return Stats{}, err
	}
	stats.MergeRecords = merges
	return stats, nil
}
