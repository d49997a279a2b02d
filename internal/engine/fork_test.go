package engine_test

import (
	"context"
	"testing"

	"github.com/louisbranch/timeloom/internal/engine"
	"github.com/louisbranch/timeloom/internal/entity"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/snapshot"
)

func TestForkIsolatesBranches(t *testing.T) {
	e, _ := newTestEngine(t)

	root := mustRoot(t, e, "camp-1")
	mustWrite(t, e, root.ID, "settlement", "rivergate", 0, snapshot.Snapshot{"level": 1})

	fork := mustFork(t, e, root.ID, "what-if", 10)
	mustWrite(t, e, fork.ID, "settlement", "rivergate", 12, snapshot.Snapshot{"level": 2})
	mustWrite(t, e, root.ID, "settlement", "rivergate", 13, snapshot.Snapshot{"level": 5})

	ref := entity.Ref{Type: "settlement", ID: "rivergate"}

	if got := mustResolve(t, e, ref, root.ID, 12); !snapshot.Equal(got, snapshot.Snapshot{"level": float64(1)}) {
		t.Fatalf("root at 12 = %v, want level 1", got)
	}
	if got := mustResolve(t, e, ref, fork.ID, 12); !snapshot.Equal(got, snapshot.Snapshot{"level": float64(2)}) {
		t.Fatalf("fork at 12 = %v, want level 2", got)
	}
	if got := mustResolve(t, e, ref, fork.ID, 14); !snapshot.Equal(got, snapshot.Snapshot{"level": float64(2)}) {
		t.Fatalf("fork at 14 = %v, want level 2 despite root edit", got)
	}
	if got := mustResolve(t, e, ref, root.ID, 14); !snapshot.Equal(got, snapshot.Snapshot{"level": float64(5)}) {
		t.Fatalf("root at 14 = %v, want level 5", got)
	}
}

func TestForkMaterializesAncestryUnion(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	root := mustRoot(t, e, "camp-1")
	mustWrite(t, e, root.ID, "settlement", "rivergate", 0, snapshot.Snapshot{"level": 1})

	child := mustFork(t, e, root.ID, "child", 10)
	mustWrite(t, e, child.ID, "character", "elke", 12, snapshot.Snapshot{"hp": 10})

	result, err := e.Fork(ctx, engine.ForkInput{
		SourceBranchID: child.ID,
		Name:           "grandchild",
		DivergedAt:     20,
		ForkedBy:       "tester",
	})
	if err != nil {
		t.Fatalf("fork grandchild: %v", err)
	}
	if result.CopiedVersionCount != 2 {
		t.Fatalf("copied = %d, want 2 (one entity per ancestry level)", result.CopiedVersionCount)
	}

	// Both materialized versions open at the divergence instant on the new
	// branch itself.
	for _, ref := range []entity.Ref{{Type: "character", ID: "elke"}, {Type: "settlement", ID: "rivergate"}} {
		resolved, err := e.Resolve(ctx, ref, result.Branch.ID, 20)
		if err != nil {
			t.Fatalf("resolve %s: %v", ref, err)
		}
		if resolved.Version.BranchID != result.Branch.ID {
			t.Fatalf("%s resolved from branch %s, want the fork itself", ref, resolved.Version.BranchID)
		}
		if resolved.Version.ValidFrom != 20 {
			t.Fatalf("%s valid from = %d, want 20", ref, resolved.Version.ValidFrom)
		}
	}
}

func TestForkOfEmptyBranch(t *testing.T) {
	e, _ := newTestEngine(t)

	root := mustRoot(t, e, "camp-1")
	result, err := e.Fork(context.Background(), engine.ForkInput{
		SourceBranchID: root.ID,
		Name:           "empty",
		DivergedAt:     10,
		ForkedBy:       "tester",
	})
	if err != nil {
		t.Fatalf("fork empty branch: %v", err)
	}
	if result.CopiedVersionCount != 0 {
		t.Fatalf("copied = %d, want 0", result.CopiedVersionCount)
	}
}

func TestForkValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	root := mustRoot(t, e, "camp-1")
	child := mustFork(t, e, root.ID, "child", 10)

	_, err := e.Fork(ctx, engine.ForkInput{SourceBranchID: "missing", Name: "x", DivergedAt: 5, ForkedBy: "tester"})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidParent {
		t.Fatalf("unknown source err = %v, want INVALID_PARENT", err)
	}

	_, err = e.Fork(ctx, engine.ForkInput{SourceBranchID: child.ID, Name: "early", DivergedAt: 5, ForkedBy: "tester"})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidParent {
		t.Fatalf("pre-divergence fork err = %v, want INVALID_PARENT", err)
	}

	_, err = e.Fork(ctx, engine.ForkInput{SourceBranchID: root.ID, Name: "x", DivergedAt: 5, ForkedBy: " "})
	if apperrors.CodeOf(err) != apperrors.CodeUserIDEmpty {
		t.Fatalf("blank user err = %v, want USER_ID_EMPTY", err)
	}
}
