// Package branch maintains campaign branch forests: creation rules, ancestry
// chains, and common-ancestor discovery for merges.
package branch

import (
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/timeloom/internal/timeline"
)

// Branch is one timeline of a campaign. Before DivergedAt its history is
// defined by the parent branch; from DivergedAt onward it records its own
// versions. The campaign root has no parent and diverges at the campaign
// epoch.
type Branch struct {
	ID         string
	CampaignID string
	ParentID   string // empty for the campaign root
	Name       string
	DivergedAt timeline.Time
	IsPinned   bool
	Color      string
	Tags       []string
	CreatedAt  time.Time
}

// IsRoot reports whether the branch is its campaign's root timeline.
func (b Branch) IsRoot() bool {
	return b.ParentID == ""
}

// NormalizeTags trims, deduplicates, and sorts a tag list.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
