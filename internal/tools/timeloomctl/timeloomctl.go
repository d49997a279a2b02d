// Package timeloomctl implements the timeloom operations CLI: inspecting
// branches and histories, resolving entity state, verifying interval
// integrity, and summarizing campaign stats against a local database file.
package timeloomctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/louisbranch/timeloom/internal/engine"
	"github.com/louisbranch/timeloom/internal/entity"
	"github.com/louisbranch/timeloom/internal/storage/sqlite"
	"github.com/louisbranch/timeloom/internal/timeline"
)

// Config holds timeloom command configuration.
type Config struct {
	DBPath     string        `env:"TIMELOOM_DB_PATH"`
	Timeout    time.Duration `env:"TIMELOOM_CTL_TIMEOUT" envDefault:"1m"`
	CampaignID string
	BranchID   string
	EntityType string
	EntityID   string
	At         int64
	After      int64
	Limit      int
	Branches   bool
	History    bool
	Resolve    bool
	Verify     bool
	Stats      bool
	Merges     bool
	JSONOutput bool
}

type envConfig struct {
	DBPath  string        `env:"TIMELOOM_DB_PATH"`
	Timeout time.Duration `env:"TIMELOOM_CTL_TIMEOUT" envDefault:"1m"`
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:  envCfg.DBPath,
		Timeout: envCfg.Timeout,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "timeloom.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to timeloom sqlite database (default: TIMELOOM_DB_PATH or data/timeloom.db)")
	fs.StringVar(&cfg.CampaignID, "campaign-id", "", "campaign id for -branches and -stats")
	fs.StringVar(&cfg.BranchID, "branch-id", "", "branch id for -history, -resolve, -verify, and -merges")
	fs.StringVar(&cfg.EntityType, "entity-type", "", "entity type for -history and -resolve")
	fs.StringVar(&cfg.EntityID, "entity-id", "", "entity id for -history and -resolve")
	fs.Int64Var(&cfg.At, "at", 0, "world-time instant for -resolve")
	fs.Int64Var(&cfg.After, "after", 0, "world-time lower bound for -history pages")
	fs.IntVar(&cfg.Limit, "limit", 0, "max rows for -history and -merges (0 = store default)")
	fs.BoolVar(&cfg.Branches, "branches", false, "list a campaign's branches")
	fs.BoolVar(&cfg.History, "history", false, "list an entity's version intervals on a branch")
	fs.BoolVar(&cfg.Resolve, "resolve", false, "resolve an entity's state at -at on a branch")
	fs.BoolVar(&cfg.Verify, "verify", false, "scan a branch for interval and payload violations")
	fs.BoolVar(&cfg.Stats, "stats", false, "summarize a campaign's stored footprint")
	fs.BoolVar(&cfg.Merges, "merges", false, "list merges targeting a branch")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the timeloom command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	mode, err := selectMode(cfg)
	if err != nil {
		return err
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

	switch mode {
	case "branches":
		return runBranches(ctx, eng, cfg, out)
	case "history":
		return runHistory(ctx, eng, cfg, out)
	case "resolve":
		return runResolve(ctx, eng, cfg, out)
	case "verify":
		return runVerify(ctx, eng, cfg, out)
	case "stats":
		return runStats(ctx, eng, cfg, out)
	case "merges":
		return runMerges(ctx, eng, cfg, out)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// selectMode enforces exactly one mode flag and its required arguments.
func selectMode(cfg Config) (string, error) {
	var modes []string
	if cfg.Branches {
		modes = append(modes, "branches")
	}
	if cfg.History {
		modes = append(modes, "history")
	}
	if cfg.Resolve {
		modes = append(modes, "resolve")
	}
	if cfg.Verify {
		modes = append(modes, "verify")
	}
	if cfg.Stats {
		modes = append(modes, "stats")
	}
	if cfg.Merges {
		modes = append(modes, "merges")
	}
	if len(modes) == 0 {
		return "", errors.New("one of -branches, -history, -resolve, -verify, -stats, or -merges is required")
	}
	if len(modes) > 1 {
		return "", fmt.Errorf("flags -%s cannot be combined", strings.Join(modes, ", -"))
	}

	mode := modes[0]
	switch mode {
	case "branches", "stats":
		if strings.TrimSpace(cfg.CampaignID) == "" {
			return "", fmt.Errorf("-%s requires -campaign-id", mode)
		}
	case "verify", "merges":
		if strings.TrimSpace(cfg.BranchID) == "" {
			return "", fmt.Errorf("-%s requires -branch-id", mode)
		}
	case "history", "resolve":
		if strings.TrimSpace(cfg.BranchID) == "" || strings.TrimSpace(cfg.EntityType) == "" || strings.TrimSpace(cfg.EntityID) == "" {
			return "", fmt.Errorf("-%s requires -branch-id, -entity-type, and -entity-id", mode)
		}
	}
	return mode, nil
}

func runBranches(ctx context.Context, eng *engine.Engine, cfg Config, out io.Writer) error {
	branches, err := eng.ListBranches(ctx, cfg.CampaignID)
	if err != nil {
		return err
	}
	if cfg.JSONOutput {
		return writeJSON(out, branches)
	}
	for _, b := range branches {
		parent := b.ParentID
		if parent == "" {
			parent = "(root)"
		}
		fmt.Fprintf(out, "%s\t%s\tparent=%s\tdiverged_at=%d\n", b.ID, b.Name, parent, b.DivergedAt)
	}
	fmt.Fprintf(out, "%d branch(es)\n", len(branches))
	return nil
}

func runHistory(ctx context.Context, eng *engine.Engine, cfg Config, out io.Writer) error {
	ref := entity.Ref{Type: cfg.EntityType, ID: cfg.EntityID}
	versions, err := eng.History(ctx, ref, cfg.BranchID, timeline.Time(cfg.After), cfg.Limit)
	if err != nil {
		return err
	}
	if cfg.JSONOutput {
		return writeJSON(out, versions)
	}
	for _, v := range versions {
		to := "open"
		if v.ValidTo != nil {
			to = fmt.Sprintf("%d", *v.ValidTo)
		}
		fmt.Fprintf(out, "%s\t[%d, %s)\tseq=%d\tby=%s\n", v.ID, v.ValidFrom, to, v.Sequence, v.CreatedBy)
	}
	fmt.Fprintf(out, "%d version(s)\n", len(versions))
	return nil
}

func runResolve(ctx context.Context, eng *engine.Engine, cfg Config, out io.Writer) error {
	ref := entity.Ref{Type: cfg.EntityType, ID: cfg.EntityID}
	state, err := eng.Resolve(ctx, ref, cfg.BranchID, timeline.Time(cfg.At))
	if err != nil {
		return err
	}
	if cfg.JSONOutput {
		return writeJSON(out, map[string]any{
			"version_id": state.Version.ID,
			"branch_id":  state.Version.BranchID,
			"valid_from": state.Version.ValidFrom,
			"snapshot":   state.Snapshot,
		})
	}
	fmt.Fprintf(out, "version %s on %s, valid from %d\n", state.Version.ID, state.Version.BranchID, state.Version.ValidFrom)
	return writeJSON(out, state.Snapshot)
}

func runVerify(ctx context.Context, eng *engine.Engine, cfg Config, out io.Writer) error {
	report, err := eng.VerifyBranchIntervals(ctx, cfg.BranchID)
	if err != nil {
		return err
	}
	if cfg.JSONOutput {
		return writeJSON(out, report)
	}
	fmt.Fprintf(out, "branch %s: %d entit(ies), %d version(s) scanned\n", report.BranchID, report.EntitiesScanned, report.VersionsScanned)
	for _, issue := range report.Issues {
		fmt.Fprintf(out, "ISSUE %s version=%s: %s\n", issue.Entity, issue.VersionID, issue.Problem)
	}
	if report.Clean() {
		fmt.Fprintln(out, "no violations found")
		return nil
	}
	return fmt.Errorf("%d violation(s) found", len(report.Issues))
}

func runStats(ctx context.Context, eng *engine.Engine, cfg Config, out io.Writer) error {
	stats, err := eng.CampaignStats(ctx, cfg.CampaignID)
	if err != nil {
		return err
	}
	if cfg.JSONOutput {
		return writeJSON(out, stats)
	}
	fmt.Fprintf(out, "campaign %s: %d branch(es), %d version(s), %d merge(s)\n", stats.CampaignID, stats.Branches, stats.Versions, stats.MergeRecords)
	return nil
}

func runMerges(ctx context.Context, eng *engine.Engine, cfg Config, out io.Writer) error {
	records, err := eng.MergeHistory(ctx, cfg.BranchID, cfg.Limit)
	if err != nil {
		return err
	}
	if cfg.JSONOutput {
		return writeJSON(out, records)
	}
	for _, record := range records {
		fmt.Fprintf(out, "%s\t%s -> %s\tat=%d\tconflicts=%d\tmerged=%d\tby=%s\n",
			record.ID, record.SourceBranchID, record.TargetBranchID, record.WorldTime,
			record.ConflictCount, record.EntitiesMergedCount, record.MergedBy)
	}
	fmt.Fprintf(out, "%d merge record(s)\n", len(records))
	return nil
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
