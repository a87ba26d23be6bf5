// Package idset provides order-independent comparison helpers for object ID lists.
package idset

import "sort"

// Dedupe returns ids with duplicates removed, keeping first occurrences in order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// TopK returns at most k deduplicated ids, order preserving.
// A non-positive k returns an empty slice.
func TopK(ids []string, k int) []string {
	if k <= 0 {
		return []string{}
	}
	out := Dedupe(ids)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// EqualIgnoreOrder reports whether a and b hold the same elements once
// duplicates are removed.
func EqualIgnoreOrder(a, b []string) bool {
	x := sorted(Dedupe(a))
	y := sorted(Dedupe(b))
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Diff returns the elements only present in a and the elements only present in b.
// Both results are deduplicated and keep the order of their source slice.
func Diff(a, b []string) (onlyInFirst, onlyInSecond []string) {
	da := Dedupe(a)
	db := Dedupe(b)

	inA := make(map[string]struct{}, len(da))
	for _, id := range da {
		inA[id] = struct{}{}
	}
	inB := make(map[string]struct{}, len(db))
	for _, id := range db {
		inB[id] = struct{}{}
	}

	onlyInFirst = []string{}
	for _, id := range da {
		if _, ok := inB[id]; !ok {
			onlyInFirst = append(onlyInFirst, id)
		}
	}
	onlyInSecond = []string{}
	for _, id := range db {
		if _, ok := inA[id]; !ok {
			onlyInSecond = append(onlyInSecond, id)
		}
	}
	return onlyInFirst, onlyInSecond
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
