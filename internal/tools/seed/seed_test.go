package seed

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db-path", "/tmp/x.db", "-campaign-id", "camp-9", "-timeout", "30s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Fatalf("db path = %q, want /tmp/x.db", cfg.DBPath)
	}
	if cfg.CampaignID != "camp-9" {
		t.Fatalf("campaign id = %q, want camp-9", cfg.CampaignID)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestRunSeedsDemoCampaign(t *testing.T) {
	cfg := Config{
		DBPath:     filepath.Join(t.TempDir(), "timeloom.db"),
		CampaignID: "demo-campaign",
		Timeout:    time.Minute,
	}

	var out, errOut bytes.Buffer
	if err := Run(context.Background(), cfg, &out, &errOut); err != nil {
		t.Fatalf("run seed: %v", err)
	}

	for _, want := range []string{
		"seeded 4 entities on main at t=0",
		"forked what-if-siege and what-if-diplomacy at t=10, 4+4 versions materialized",
		"recorded 4 divergent edits",
		"merged what-if-siege into what-if-diplomacy at t=20: 2 entities, 1 conflicts resolved",
		"campaign demo-campaign: 3 branches, 19 versions, 1 merge records",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	// The campaign root already exists, so a second run refuses.
	if err := Run(context.Background(), cfg, &out, &errOut); err == nil {
		t.Fatal("expected error re-seeding an existing campaign")
	}
}
