package version

import (
	"testing"

	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/timeline"
)

func TestContains(t *testing.T) {
	closed := Version{ValidFrom: 5, ValidTo: timeline.Ptr(timeline.Time(10))}
	cases := []struct {
		at   timeline.Time
		want bool
	}{
		{4, false},
		{5, true},
		{9, true},
		{10, false},
	}
	for _, tc := range cases {
		if got := closed.Contains(tc.at); got != tc.want {
			t.Fatalf("Contains(%d) = %v, want %v", tc.at, got, tc.want)
		}
	}

	open := Version{ValidFrom: 5}
	if !open.Contains(timeline.Max) {
		t.Fatal("open interval should contain any later instant")
	}
	if !open.Open() {
		t.Fatal("nil ValidTo should report open")
	}
}

func TestHashPayload(t *testing.T) {
	a := HashPayload([]byte("payload"))
	if len(a) != 16 {
		t.Fatalf("hash length = %d, want 16 hex chars", len(a))
	}
	if a != HashPayload([]byte("payload")) {
		t.Fatal("hash is not deterministic")
	}
	if a == HashPayload([]byte("other")) {
		t.Fatal("distinct payloads share a hash")
	}
}

func TestAppendInputValidate(t *testing.T) {
	valid := AppendInput{
		EntityType: "settlement",
		EntityID:   "rivergate",
		BranchID:   "b-1",
		ValidFrom:  0,
		Payload:    []byte{0x01},
		CreatedBy:  "tester",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*AppendInput)
		want   apperrors.Code
	}{
		{"blank entity type", func(in *AppendInput) { in.EntityType = " " }, apperrors.CodeEntityTypeEmpty},
		{"blank branch", func(in *AppendInput) { in.BranchID = "" }, apperrors.CodeBranchIDEmpty},
		{"negative world time", func(in *AppendInput) { in.ValidFrom = -1 }, apperrors.CodeWorldTimeInvalid},
		{"empty payload", func(in *AppendInput) { in.Payload = nil }, apperrors.CodeSnapshotInvalidValue},
		{"blank creator", func(in *AppendInput) { in.CreatedBy = "" }, apperrors.CodeUserIDEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			if got := apperrors.CodeOf(in.Validate()); got != tc.want {
				t.Fatalf("code = %s, want %s", got, tc.want)
			}
		})
	}
}
