package sqlite

import (
	"context"
	"testing"

	"github.com/louisbranch/timeloom/internal/entity"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/timeline"
	"github.com/louisbranch/timeloom/internal/version"
)

func TestAppendVersionFirstWrite(t *testing.T) {
	store := openTempStore(t)

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	v := mustAppend(t, store, appendInput("b-1", 0, "payload-1"))

	if v.ID == "" {
		t.Fatal("version id not assigned")
	}
	if v.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", v.Sequence)
	}
	if !v.Open() {
		t.Fatalf("valid to = %v, want open", v.ValidTo)
	}
	if v.PayloadHash != version.HashPayload([]byte("payload-1")) {
		t.Fatalf("payload hash = %q, want checksum of payload", v.PayloadHash)
	}
}

func TestAppendVersionClosesPriorInterval(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	first := mustAppend(t, store, appendInput("b-1", 0, "payload-1"))
	second := mustAppend(t, store, appendInput("b-1", 10, "payload-2"))

	if second.Sequence != 2 {
		t.Fatalf("second sequence = %d, want 2", second.Sequence)
	}

	ref := entity.Ref{Type: "settlement", ID: "rivergate"}
	history, err := store.VersionHistory(ctx, ref, "b-1", timeline.Epoch, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2", len(history))
	}
	if history[0].ID != first.ID {
		t.Fatalf("history[0] = %s, want first append", history[0].ID)
	}
	if history[0].ValidTo == nil || *history[0].ValidTo != 10 {
		t.Fatalf("first valid to = %v, want 10", history[0].ValidTo)
	}
	if history[1].ValidTo != nil {
		t.Fatalf("second valid to = %v, want open", history[1].ValidTo)
	}
}

func TestAppendVersionStaleSequenceRejected(t *testing.T) {
	store := openTempStore(t)

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	mustAppend(t, store, appendInput("b-1", 0, "payload-1"))
	mustAppend(t, store, appendInput("b-1", 5, "payload-2"))

	stale := uint64(1)
	input := appendInput("b-1", 9, "payload-3")
	input.ExpectedSequence = &stale
	_, err := store.AppendVersion(context.Background(), input)
	if apperrors.CodeOf(err) != apperrors.CodeConcurrentModification {
		t.Fatalf("err = %v, want CONCURRENT_MODIFICATION", err)
	}

	current := uint64(2)
	input = appendInput("b-1", 9, "payload-3")
	input.ExpectedSequence = &current
	if _, err := store.AppendVersion(context.Background(), input); err != nil {
		t.Fatalf("append with current sequence: %v", err)
	}
}

func TestAppendVersionMustAdvanceTimeline(t *testing.T) {
	store := openTempStore(t)

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	mustAppend(t, store, appendInput("b-1", 10, "payload-1"))

	_, err := store.AppendVersion(context.Background(), appendInput("b-1", 10, "payload-2"))
	if apperrors.CodeOf(err) != apperrors.CodeConcurrentModification {
		t.Fatalf("same instant err = %v, want CONCURRENT_MODIFICATION", err)
	}

	_, err = store.AppendVersion(context.Background(), appendInput("b-1", 4, "payload-2"))
	if apperrors.CodeOf(err) != apperrors.CodeConcurrentModification {
		t.Fatalf("earlier instant err = %v, want CONCURRENT_MODIFICATION", err)
	}
}

func TestAppendVersionValidation(t *testing.T) {
	store := openTempStore(t)

	input := appendInput("b-1", 0, "payload")
	input.EntityType = ""
	if _, err := store.AppendVersion(context.Background(), input); err == nil {
		t.Fatal("expected validation error for empty entity type")
	}

	input = appendInput("b-1", 0, "")
	if _, err := store.AppendVersion(context.Background(), input); err == nil {
		t.Fatal("expected validation error for empty payload")
	}
}

func TestGetVersion(t *testing.T) {
	store := openTempStore(t)

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	v := mustAppend(t, store, appendInput("b-1", 0, "payload-1"))

	got, err := store.GetVersion(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if string(got.Payload) != "payload-1" || got.CreatedBy != "tester" {
		t.Fatalf("version = payload %q by %q, want payload-1 by tester", got.Payload, got.CreatedBy)
	}

	_, err = store.GetVersion(context.Background(), "missing")
	if apperrors.CodeOf(err) != apperrors.CodeVersionNotFound {
		t.Fatalf("missing err = %v, want VERSION_NOT_FOUND", err)
	}
}

func TestVersionAtBoundaries(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	ref := entity.Ref{Type: "settlement", ID: "rivergate"}

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	mustAppend(t, store, appendInput("b-1", 5, "payload-1"))
	mustAppend(t, store, appendInput("b-1", 10, "payload-2"))

	// Before the first interval opens the entity is absent.
	if _, err := store.VersionAt(ctx, ref, "b-1", 4); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("before history err = %v, want NOT_FOUND", err)
	}

	v, err := store.VersionAt(ctx, ref, "b-1", 5)
	if err != nil {
		t.Fatalf("version at open bound: %v", err)
	}
	if string(v.Payload) != "payload-1" {
		t.Fatalf("at 5 payload = %q, want payload-1", v.Payload)
	}

	// Intervals are half-open: the close instant belongs to the successor.
	v, err = store.VersionAt(ctx, ref, "b-1", 10)
	if err != nil {
		t.Fatalf("version at close bound: %v", err)
	}
	if string(v.Payload) != "payload-2" {
		t.Fatalf("at 10 payload = %q, want payload-2", v.Payload)
	}

	v, err = store.VersionAt(ctx, ref, "b-1", 9)
	if err != nil {
		t.Fatalf("version inside interval: %v", err)
	}
	if string(v.Payload) != "payload-1" {
		t.Fatalf("at 9 payload = %q, want payload-1", v.Payload)
	}
}

func TestVersionAtIgnoresOtherBranches(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	ref := entity.Ref{Type: "settlement", ID: "rivergate"}

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	mustCreateBranch(t, store, testBranch("b-2", "camp-1", "b-1", 0))
	mustAppend(t, store, appendInput("b-1", 0, "payload-1"))

	if _, err := store.VersionAt(ctx, ref, "b-2", 5); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("other branch err = %v, want NOT_FOUND", err)
	}
}

func TestVersionHistoryPagination(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	ref := entity.Ref{Type: "settlement", ID: "rivergate"}

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	for i := 0; i < 5; i++ {
		mustAppend(t, store, appendInput("b-1", timeline.Time(i*10), "payload"))
	}

	page, err := store.VersionHistory(ctx, ref, "b-1", timeline.Epoch, 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 2 || page[0].ValidFrom != 0 || page[1].ValidFrom != 10 {
		t.Fatalf("first page = %d rows from %d, want 2 from 0", len(page), page[0].ValidFrom)
	}

	page, err = store.VersionHistory(ctx, ref, "b-1", page[1].ValidFrom+1, 10)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page) != 3 || page[0].ValidFrom != 20 {
		t.Fatalf("second page = %d rows from %d, want 3 from 20", len(page), page[0].ValidFrom)
	}
}

func TestListBranchEntities(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))

	first := appendInput("b-1", 0, "payload")
	mustAppend(t, store, first)

	second := first
	second.EntityID = "thornwall"
	second.ValidFrom = 20
	mustAppend(t, store, second)

	third := first
	third.EntityType = "character"
	third.EntityID = "elke"
	third.ValidFrom = 5
	mustAppend(t, store, third)

	refs, err := store.ListBranchEntities(ctx, "b-1", 10)
	if err != nil {
		t.Fatalf("list entities: %v", err)
	}
	want := []entity.Ref{
		{Type: "character", ID: "elke"},
		{Type: "settlement", ID: "rivergate"},
	}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("refs[%d] = %v, want %v", i, refs[i], want[i])
		}
	}
}

func TestCountBranchVersions(t *testing.T) {
	store := openTempStore(t)

	mustCreateBranch(t, store, testBranch("b-1", "camp-1", "", 0))
	mustAppend(t, store, appendInput("b-1", 0, "payload-1"))
	mustAppend(t, store, appendInput("b-1", 5, "payload-2"))

	count, err := store.CountBranchVersions(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}
