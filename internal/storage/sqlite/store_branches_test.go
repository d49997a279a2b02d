package sqlite

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
)

func TestCreateAndGetBranch(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	b := testBranch("b-1", "camp-1", "", 0)
	b.IsPinned = true
	b.Color = "#aa3322"
	b.Tags = []string{"siege", "  siege", "alt", ""}
	mustCreateBranch(t, store, b)

	got, err := store.GetBranch(ctx, "b-1")
	if err != nil {
		t.Fatalf("get branch: %v", err)
	}
	if got.CampaignID != "camp-1" {
		t.Fatalf("campaign id = %q, want camp-1", got.CampaignID)
	}
	if !got.IsRoot() {
		t.Fatal("branch without parent should be root")
	}
	if !got.IsPinned || got.Color != "#aa3322" {
		t.Fatalf("display fields = pinned=%v color=%q, want pinned #aa3322", got.IsPinned, got.Color)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "alt" || got.Tags[1] != "siege" {
		t.Fatalf("tags = %v, want [alt siege]", got.Tags)
	}
	if !got.CreatedAt.Equal(b.CreatedAt) {
		t.Fatalf("created at = %v, want %v", got.CreatedAt, b.CreatedAt)
	}
}

func TestGetBranchNotFound(t *testing.T) {
	store := openTempStore(t)

	_, err := store.GetBranch(context.Background(), "missing")
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestCreateBranchSecondRootRejected(t *testing.T) {
	store := openTempStore(t)

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))

	err := store.CreateBranch(context.Background(), testBranch("b-2", "camp-1", "", 0))
	if apperrors.CodeOf(err) != apperrors.CodeRootBranchExists {
		t.Fatalf("err = %v, want ROOT_BRANCH_EXISTS", err)
	}

	// A root for a different campaign is fine.
	mustCreateBranch(t, store, testBranch("b-3", "camp-2", "", 0))
}

func TestListBranchesOrderedByCreation(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	root := testBranch("b-1", "camp-1", "", 0)
	mustCreateBranch(t, store, root)

	child := testBranch("b-2", "camp-1", "b-1", 5)
	child.CreatedAt = root.CreatedAt.Add(time.Second)
	mustCreateBranch(t, store, child)

	mustCreateBranch(t, store, testBranch("b-9", "camp-2", "", 0))

	branches, err := store.ListBranches(ctx, "camp-1")
	if err != nil {
		t.Fatalf("list branches: %v", err)
	}
	if len(branches) != 2 {
		t.Fatalf("branches len = %d, want 2", len(branches))
	}
	if branches[0].ID != "b-1" || branches[1].ID != "b-2" {
		t.Fatalf("order = [%s %s], want [b-1 b-2]", branches[0].ID, branches[1].ID)
	}
	if branches[1].ParentID != "b-1" || branches[1].DivergedAt != 5 {
		t.Fatalf("child = parent %q diverged %d, want b-1 5", branches[1].ParentID, branches[1].DivergedAt)
	}
}

func TestUpdateBranchTouchesDisplayFieldsOnly(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	mustCreateBranch(t, store, testBranch("b-2", "camp-1", "b-1", 5))

	updated := testBranch("b-2", "camp-1", "ignored", 99)
	updated.Name = "renamed"
	updated.IsPinned = true
	if err := store.UpdateBranch(ctx, updated); err != nil {
		t.Fatalf("update branch: %v", err)
	}

	got, err := store.GetBranch(ctx, "b-2")
	if err != nil {
		t.Fatalf("get branch: %v", err)
	}
	if got.Name != "renamed" || !got.IsPinned {
		t.Fatalf("display fields = %q pinned=%v, want renamed pinned", got.Name, got.IsPinned)
	}
	if got.ParentID != "b-1" || got.DivergedAt != 5 {
		t.Fatalf("structural fields changed: parent %q diverged %d", got.ParentID, got.DivergedAt)
	}
}

func TestUpdateBranchNotFound(t *testing.T) {
	store := openTempStore(t)

	err := store.UpdateBranch(context.Background(), testBranch("missing", "camp-1", "", 0))
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestCountChildBranches(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	mustCreateBranch(t, store, testBranch("b-2", "camp-1", "b-1", 3))
	mustCreateBranch(t, store, testBranch("b-3", "camp-1", "b-1", 4))

	count, err := store.CountChildBranches(ctx, "b-1")
	if err != nil {
		t.Fatalf("count children: %v", err)
	}
	if count != 2 {
		t.Fatalf("children = %d, want 2", count)
	}

	count, err = store.CountChildBranches(ctx, "b-2")
	if err != nil {
		t.Fatalf("count children leaf: %v", err)
	}
	if count != 0 {
		t.Fatalf("leaf children = %d, want 0", count)
	}
}

func TestDeleteBranchCascadesVersions(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	mustCreateBranch(t, store, testBranch("b-2", "camp-1", "b-1", 3))
	mustAppend(t, store, appendInput("b-2", 3, "payload"))

	if err := store.DeleteBranch(ctx, "b-2"); err != nil {
		t.Fatalf("delete branch: %v", err)
	}

	if _, err := store.GetBranch(ctx, "b-2"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("get deleted branch err = %v, want NOT_FOUND", err)
	}
	count, err := store.CountBranchVersions(ctx, "b-2")
	if err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != 0 {
		t.Fatalf("versions after cascade = %d, want 0", count)
	}
}
