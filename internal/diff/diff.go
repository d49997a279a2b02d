// Package diff computes structural deltas between entity snapshots and
// applies them back onto base states. Paths are dotted key chains into the
// nested snapshot map; list values compare as atoms.
package diff

import (
	"reflect"
	"sort"
	"strings"

	"github.com/louisbranch/timeloom/internal/snapshot"
)

// Change captures a value replacement at one path.
type Change struct {
	Old any
	New any
}

// Diff records the path-level differences between a base snapshot and a
// candidate snapshot.
type Diff struct {
	Added    map[string]any
	Modified map[string]Change
	Removed  map[string]any
}

// PathConflict reports one path changed to different results by two diffs
// computed against the same base.
type PathConflict struct {
	Path   string
	Base   any
	Source any
	Target any
}

// Compute compares base and candidate key/value trees. A key present only in
// candidate is added; present only in base is removed; present in both with
// unequal values is modified. Nested maps recurse path-wise down to the
// snapshot nesting bound, past which values compare atomically.
func Compute(base, candidate snapshot.Snapshot) Diff {
	d := Diff{
		Added:    map[string]any{},
		Modified: map[string]Change{},
		Removed:  map[string]any{},
	}
	compare("", base, candidate, 1, &d)
	return d
}

func compare(prefix string, base, candidate map[string]any, depth int, d *Diff) {
	for key, baseValue := range base {
		path := joinPath(prefix, key)
		candidateValue, ok := candidate[key]
		if !ok {
			d.Removed[path] = baseValue
			continue
		}
		baseMap, baseIsMap := baseValue.(map[string]any)
		candidateMap, candidateIsMap := candidateValue.(map[string]any)
		if baseIsMap && candidateIsMap && depth < snapshot.MaxDepth {
			compare(path, baseMap, candidateMap, depth+1, d)
			continue
		}
		if !reflect.DeepEqual(baseValue, candidateValue) {
			d.Modified[path] = Change{Old: baseValue, New: candidateValue}
		}
	}
	for key, candidateValue := range candidate {
		if _, ok := base[key]; ok {
			continue
		}
		d.Added[joinPath(prefix, key)] = candidateValue
	}
}

// Empty reports whether the diff records no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Paths returns every touched path in sorted order.
func (d Diff) Paths() []string {
	paths := make([]string, 0, len(d.Added)+len(d.Modified)+len(d.Removed))
	for path := range d.Added {
		paths = append(paths, path)
	}
	for path := range d.Modified {
		paths = append(paths, path)
	}
	for path := range d.Removed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// resultAt returns the value a path ends up with after applying the diff.
func (d Diff) resultAt(path string) (value any, removed bool, touched bool) {
	if v, ok := d.Added[path]; ok {
		return v, false, true
	}
	if c, ok := d.Modified[path]; ok {
		return c.New, false, true
	}
	if _, ok := d.Removed[path]; ok {
		return nil, true, true
	}
	return nil, false, false
}

func (d Diff) baseAt(path string) any {
	if c, ok := d.Modified[path]; ok {
		return c.Old
	}
	if v, ok := d.Removed[path]; ok {
		return v
	}
	return nil
}

// Conflicts reports the paths both diffs touch with different resulting
// values. Identical results on both sides are auto-mergeable, not conflicts.
func Conflicts(source, target Diff) []PathConflict {
	var out []PathConflict
	for _, path := range source.Paths() {
		sourceValue, sourceRemoved, _ := source.resultAt(path)
		targetValue, targetRemoved, touched := target.resultAt(path)
		if !touched {
			continue
		}
		if sourceRemoved != targetRemoved || (!sourceRemoved && !reflect.DeepEqual(sourceValue, targetValue)) {
			out = append(out, PathConflict{
				Path:   path,
				Base:   source.baseAt(path),
				Source: sourceValue,
				Target: targetValue,
			})
		}
	}
	return out
}

// Overlay applies d onto base and returns the result; base is not mutated.
// Removals apply before additions and modifications, so a path removed by one
// side of a merge and re-added by the other lands in its re-added form.
func Overlay(base snapshot.Snapshot, d Diff) snapshot.Snapshot {
	out := base.Clone()
	if out == nil {
		out = snapshot.Snapshot{}
	}
	for _, path := range sortedKeys(d.Removed) {
		removePath(out, path)
	}
	for _, path := range sortedKeys(d.Added) {
		setPath(out, path, snapshot.CloneValue(d.Added[path]))
	}
	for _, path := range sortedKeys(d.Modified) {
		setPath(out, path, snapshot.CloneValue(d.Modified[path].New))
	}
	return out
}

// Merge overlays two diffs computed against the same base. Callers must
// have checked Conflicts first; where both diffs touch a path they agree,
// so application order does not matter.
func Merge(base snapshot.Snapshot, source, target Diff) snapshot.Snapshot {
	return Overlay(Overlay(base, source), target)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func setPath(m map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	for _, segment := range segments[:len(segments)-1] {
		child, ok := m[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[segment] = child
		}
		m = child
	}
	m[segments[len(segments)-1]] = value
}

func removePath(m map[string]any, path string) {
	segments := strings.Split(path, ".")
	for _, segment := range segments[:len(segments)-1] {
		child, ok := m[segment].(map[string]any)
		if !ok {
			return
		}
		m = child
	}
	delete(m, segments[len(segments)-1])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
