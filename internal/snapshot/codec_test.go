package snapshot

import (
	"strings"
	"testing"
)

func TestProtoCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	state := Snapshot{
		"name":  "Rivergate",
		"level": float64(3),
		"flags": map[string]any{"under_siege": true, "capital": false},
		"tags":  []any{"river", "trade"},
		"ruler": nil,
	}

	payload, err := codec.Encode(state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equal(state, decoded) {
		t.Fatalf("decoded = %v, want %v", decoded, state)
	}
}

func TestProtoCodecNormalizesNumbers(t *testing.T) {
	codec := newTestCodec(t)

	payload, err := codec.Encode(Snapshot{"level": 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["level"] != float64(2) {
		t.Fatalf("level = %v (%T), want float64 2", decoded["level"], decoded["level"])
	}
}

func TestProtoCodecNilSnapshot(t *testing.T) {
	codec := newTestCodec(t)

	payload, err := codec.Encode(nil)
	if err != nil {
		t.Fatalf("encode nil: %v", err)
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("decoded = %v, want empty", decoded)
	}
}

func TestProtoCodecDepthBound(t *testing.T) {
	codec := newTestCodec(t)

	state := Snapshot{}
	nested := map[string]any(state)
	for i := 0; i < MaxDepth+1; i++ {
		inner := map[string]any{}
		nested["child"] = inner
		nested = inner
	}
	if _, err := codec.Encode(state); err == nil {
		t.Fatal("expected depth bound error")
	}
}

func TestProtoCodecRejectsDottedKeys(t *testing.T) {
	codec := newTestCodec(t)

	if _, err := codec.Encode(Snapshot{"a.b": 1}); err == nil {
		t.Fatal("expected dotted key rejection")
	}
}

func TestProtoCodecDecodeCorrupt(t *testing.T) {
	codec := newTestCodec(t)

	if _, err := codec.Decode(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, err := codec.Decode([]byte{0xff, 0x01, 0x02}); err == nil {
		t.Fatal("expected error for unknown format byte")
	}
	if _, err := codec.Decode([]byte{formatProtoZstd, 0x00, 0x01}); err == nil {
		t.Fatal("expected error for garbage body")
	}
}

func TestNormalizeMatchesRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	literal := Snapshot{"level": 2, "name": "A", "nested": map[string]any{"count": 7}}
	normalized, err := Normalize(literal)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	payload, err := codec.Encode(literal)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equal(normalized, decoded) {
		t.Fatalf("normalized = %v, round trip = %v", normalized, decoded)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := Snapshot{"nested": map[string]any{"level": float64(1)}, "tags": []any{"a"}}
	cloned := original.Clone()

	cloned["nested"].(map[string]any)["level"] = float64(9)
	cloned["tags"].([]any)[0] = "b"

	if original["nested"].(map[string]any)["level"] != float64(1) {
		t.Fatal("clone shares nested map with original")
	}
	if original["tags"].([]any)[0] != "a" {
		t.Fatal("clone shares list with original")
	}
}

func TestEqualTreatsNilAndEmptyAlike(t *testing.T) {
	if !Equal(nil, Snapshot{}) {
		t.Fatal("nil and empty snapshots should be equal")
	}
	if Equal(Snapshot{"a": float64(1)}, Snapshot{"a": float64(2)}) {
		t.Fatal("different values should not be equal")
	}
}

func TestValidateDepthErrorMentionsBound(t *testing.T) {
	state := Snapshot{}
	nested := map[string]any(state)
	for i := 0; i < MaxDepth+1; i++ {
		inner := map[string]any{}
		nested["child"] = inner
		nested = inner
	}
	err := Validate(state)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "nesting") {
		t.Fatalf("error = %q, want nesting bound mention", err.Error())
	}
}

func newTestCodec(t *testing.T) *ProtoCodec {
	t.Helper()
	codec, err := NewProtoCodec()
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}
