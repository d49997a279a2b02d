// Package seed builds a small demo campaign against a local database: a
// root branch with a few entities, a fork with divergent edits, a merge
// with one resolved conflict, and a cherry-pick. Used in development and
// for documentation walkthroughs.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/louisbranch/timeloom/internal/engine"
	"github.com/louisbranch/timeloom/internal/entity"
	"github.com/louisbranch/timeloom/internal/merge"
	"github.com/louisbranch/timeloom/internal/snapshot"
	"github.com/louisbranch/timeloom/internal/storage/sqlite"
	"github.com/louisbranch/timeloom/internal/timeline"
)

const seedUser = "seed-tool"

// Config holds seed command configuration.
type Config struct {
	DBPath     string        `env:"TIMELOOM_DB_PATH"`
	CampaignID string        `env:"TIMELOOM_SEED_CAMPAIGN_ID" envDefault:"demo-campaign"`
	Timeout    time.Duration `env:"TIMELOOM_SEED_TIMEOUT" envDefault:"1m"`
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "timeloom.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to timeloom sqlite database (default: TIMELOOM_DB_PATH or data/timeloom.db)")
	fs.StringVar(&cfg.CampaignID, "campaign-id", cfg.CampaignID, "campaign id to seed")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run seeds the demo campaign and prints a summary.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "close store: %v\n", err)
		}
	}()

	eng, err := engine.New(store)
	if err != nil {
		return err
	}

	main, err := eng.CreateRootBranch(ctx, cfg.CampaignID, "main", timeline.Epoch)
	if err != nil {
		return fmt.Errorf("create root branch: %w", err)
	}
	fmt.Fprintf(out, "root branch %s (%s)\n", main.Name, main.ID)

	initial := []struct {
		ref   entity.Ref
		state snapshot.Snapshot
	}{
		{entity.Ref{Type: "settlement", ID: "rivergate"}, snapshot.Snapshot{"name": "Rivergate", "level": float64(1), "population": float64(340)}},
		{entity.Ref{Type: "settlement", ID: "thornwall"}, snapshot.Snapshot{"name": "Thornwall", "level": float64(2), "population": float64(900)}},
		{entity.Ref{Type: "character", ID: "elke"}, snapshot.Snapshot{"name": "Elke", "role": "warden", "hp": float64(24)}},
		{entity.Ref{Type: "event", ID: "harvest-festival"}, snapshot.Snapshot{"name": "Harvest Festival", "status": "planned"}},
	}
	for _, seed := range initial {
		if _, err := eng.AppendEntityVersion(ctx, engine.AppendInput{
			EntityType: seed.ref.Type,
			EntityID:   seed.ref.ID,
			BranchID:   main.ID,
			WorldTime:  timeline.Epoch,
			State:      seed.state,
			UpdatedBy:  seedUser,
		}); err != nil {
			return fmt.Errorf("seed %s: %w", seed.ref, err)
		}
	}
	fmt.Fprintf(out, "seeded %d entities on %s at t=0\n", len(initial), main.Name)

	// Two sibling forks of main, so their merge compares both against the
	// shared main state rather than against each other.
	siege, err := eng.Fork(ctx, engine.ForkInput{
		SourceBranchID: main.ID,
		Name:           "what-if-siege",
		DivergedAt:     10,
		ForkedBy:       seedUser,
	})
	if err != nil {
		return fmt.Errorf("fork siege: %w", err)
	}
	diplomacy, err := eng.Fork(ctx, engine.ForkInput{
		SourceBranchID: main.ID,
		Name:           "what-if-diplomacy",
		DivergedAt:     10,
		ForkedBy:       seedUser,
	})
	if err != nil {
		return fmt.Errorf("fork diplomacy: %w", err)
	}
	fmt.Fprintf(out, "forked %s and %s at t=10, %d+%d versions materialized\n",
		siege.Branch.Name, diplomacy.Branch.Name, siege.CopiedVersionCount, diplomacy.CopiedVersionCount)

	// Divergent edits: both timelines raise Rivergate's level to different
	// values (a conflict); the siege alone besieges Thornwall, the
	// diplomacy timeline alone runs the festival.
	edits := []struct {
		branchID string
		ref      entity.Ref
		state    snapshot.Snapshot
		at       timeline.Time
	}{
		{siege.Branch.ID, initial[0].ref, snapshot.Snapshot{"name": "Rivergate", "level": float64(3), "population": float64(340)}, 12},
		{siege.Branch.ID, initial[1].ref, snapshot.Snapshot{"name": "Thornwall", "level": float64(2), "population": float64(650), "under_siege": true}, 14},
		{diplomacy.Branch.ID, initial[0].ref, snapshot.Snapshot{"name": "Rivergate", "level": float64(2), "population": float64(360)}, 13},
		{diplomacy.Branch.ID, initial[3].ref, snapshot.Snapshot{"name": "Harvest Festival", "status": "underway"}, 15},
	}
	for _, edit := range edits {
		if _, err := eng.AppendEntityVersion(ctx, engine.AppendInput{
			EntityType: edit.ref.Type,
			EntityID:   edit.ref.ID,
			BranchID:   edit.branchID,
			WorldTime:  edit.at,
			State:      edit.state,
			UpdatedBy:  seedUser,
		}); err != nil {
			return fmt.Errorf("edit %s: %w", edit.ref, err)
		}
	}
	fmt.Fprintf(out, "recorded %d divergent edits\n", len(edits))

	result, err := eng.Merge(ctx, engine.MergeInput{
		SourceBranchID: siege.Branch.ID,
		TargetBranchID: diplomacy.Branch.ID,
		WorldTime:      20,
		MergedBy:       seedUser,
		Resolutions: []merge.Resolution{
			{EntityType: "settlement", EntityID: "rivergate", Strategy: merge.KeepSource},
		},
		Metadata: map[string]string{"reason": "demo merge"},
	})
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	fmt.Fprintf(out, "merged %s into %s at t=20: %d entities, %d conflicts resolved\n",
		siege.Branch.Name, diplomacy.Branch.Name, len(result.Merged), result.Record.ConflictCount)

	history, err := eng.History(ctx, initial[1].ref, siege.Branch.ID, timeline.Epoch, 0)
	if err != nil {
		return fmt.Errorf("siege history: %w", err)
	}
	picked, err := eng.CherryPick(ctx, engine.CherryPickInput{
		SourceBranchID: siege.Branch.ID,
		VersionID:      history[len(history)-1].ID,
		TargetBranchID: main.ID,
		WorldTime:      25,
		PickedBy:       seedUser,
	})
	if err != nil {
		return fmt.Errorf("cherry-pick: %w", err)
	}
	fmt.Fprintf(out, "cherry-picked %s onto %s as %s at t=25\n", history[len(history)-1].ID, main.Name, picked.ID)

	stats, err := eng.CampaignStats(ctx, cfg.CampaignID)
	if err != nil {
		return fmt.Errorf("campaign stats: %w", err)
	}
	fmt.Fprintf(out, "campaign %s: %d branches, %d versions, %d merge records\n",
		stats.CampaignID, stats.Branches, stats.Versions, stats.MergeRecords)
	return nil
}
