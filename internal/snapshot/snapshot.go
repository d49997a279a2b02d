// Package snapshot holds the generic key/value state of an entity and the
// codec that turns that state into the opaque payload bytes persisted on
// versions.
package snapshot

import (
	"reflect"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaxDepth bounds snapshot nesting. The codec rejects deeper values and the
// diff engine stops descending at the same bound.
const MaxDepth = 16

// Snapshot is the full state of one entity as a nested key/value map. Values
// are restricted to JSON-like kinds (nil, bool, number, string, list, map);
// encoding normalizes all numbers to float64. Keys must not contain dots,
// which are reserved as path separators by the diff engine.
type Snapshot map[string]any

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue returns a deep copy of a single snapshot value.
func CloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return value
	}
}

// Equal reports deep structural equality between two snapshots. Nil and empty
// snapshots are equal; both sides are expected to hold normalized values.
func Equal(a, b Snapshot) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Normalize converts s into its canonical decoded form, the same value a
// codec round-trip would produce. Callers building snapshots from Go literals
// should normalize before comparing against resolved state.
func Normalize(s Snapshot) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, nil
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(map[string]any(s))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSnapshotInvalidValue, "snapshot has unsupported value", err)
	}
	return Snapshot(st.AsMap()), nil
}

// Validate checks nesting depth and key constraints without encoding.
func Validate(s Snapshot) error {
	return validateMap(map[string]any(s), 1)
}

func validateMap(m map[string]any, depth int) error {
	if depth > MaxDepth {
		return apperrors.WithMetadata(apperrors.CodeSnapshotTooDeep, "snapshot exceeds nesting bound", map[string]string{
			"max_depth": strconv.Itoa(MaxDepth),
		})
	}
	for k, v := range m {
		if strings.Contains(k, ".") {
			return apperrors.WithMetadata(apperrors.CodeSnapshotInvalidValue, "snapshot keys must not contain dots", map[string]string{
				"key": k,
			})
		}
		if err := validateValue(v, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(v any, depth int) error {
	switch value := v.(type) {
	case map[string]any:
		return validateMap(value, depth+1)
	case []any:
		if depth+1 > MaxDepth {
			return apperrors.WithMetadata(apperrors.CodeSnapshotTooDeep, "snapshot exceeds nesting bound", map[string]string{
				"max_depth": strconv.Itoa(MaxDepth),
			})
		}
		for _, item := range value {
			if err := validateValue(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
