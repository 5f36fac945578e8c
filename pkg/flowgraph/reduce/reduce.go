// Package reduce provides the merge policies that fold partial state updates
// into the State threaded through a flowgraph run.
//
// Three policies exist, one per field shape:
//
//   - Overwrite for scalar fields: the newest present value wins.
//   - Append for log fields: entries accumulate in declaration order.
//   - ShallowMerge for map fields: key union, top level only.
//
// The functions never mutate their arguments. Results may share backing
// storage with an argument only when that argument is returned unchanged.
package reduce

import "maps"

// Overwrite returns next if it is non-zero, otherwise prev.
func Overwrite[T comparable](prev, next T) T {
	var zero T
	if next == zero {
		return prev
	}
	return next
}

// Append returns prev followed by next.
// A nil or empty next leaves prev unchanged.
func Append[T any](prev, next []T) []T {
	if len(next) == 0 {
		return prev
	}
	out := make([]T, 0, len(prev)+len(next))
	out = append(out, prev...)
	return append(out, next...)
}

// ShallowMerge returns a copy of prev with every key of next applied.
// Values from next replace values from prev on collision. Nested maps are
// replaced wholesale, never merged recursively.
//
// If next is empty prev is returned unchanged; if prev is empty next is
// returned.
func ShallowMerge[K comparable, V any](prev, next map[K]V) map[K]V {
	if len(next) == 0 {
		return prev
	}
	if len(prev) == 0 {
		return next
	}
	out := maps.Clone(prev)
	maps.Copy(out, next)
	return out
}
