// Package order assigns and repairs the relative ordering keys of sibling collections
// (sections of a document, items of a section).
package order

import (
	"sort"

	"checkline/internal/domain"
)

// Step is the gap between consecutive default keys.
const Step = 10

// Key is an ordering key as read from input; Valid is false when it was missing or not numeric.
type Key struct {
	Value float64
	Valid bool
}

// Repair returns one unique key per input slot. Missing keys are filled from a running
// maximum so they follow the valid keys seen before them; if the result still holds a
// duplicate, the whole collection is renumbered Step, 2*Step, ... in input order.
func Repair(keys []Key) []float64 {
	out := make([]float64, len(keys))
	next := float64(Step)
	for i, k := range keys {
		v := k.Value
		if !k.Valid {
			v = next
		}
		out[i] = v
		if v > next {
			next = v
		}
		next += Step
	}
	seen := make(map[float64]struct{}, len(out))
	for _, v := range out {
		if _, dup := seen[v]; dup {
			for i := range out {
				out[i] = float64((i + 1) * Step)
			}
			return out
		}
		seen[v] = struct{}{}
	}
	return out
}

// Next returns the key for a member appended after every existing one.
func Next(keys []float64) float64 {
	max := 0.0
	for _, k := range keys {
		if k > max {
			max = k
		}
	}
	return max + Step
}

// Sorted returns the indices 0..n-1 stably sorted by key.
func Sorted(n int, key func(i int) float64) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return key(idx[a]) < key(idx[b]) })
	return idx
}

// neighbour returns the storage index of the member next to at in the sorted view, or -1.
func neighbour(n, at int, dir domain.Direction, key func(i int) float64) int {
	sorted := Sorted(n, key)
	pos := -1
	for p, i := range sorted {
		if i == at {
			pos = p
			break
		}
	}
	if pos < 0 {
		return -1
	}
	switch dir {
	case domain.Up:
		pos--
	case domain.Down:
		pos++
	default:
		return -1
	}
	if pos < 0 || pos >= n {
		return -1
	}
	return sorted[pos]
}

// CanMove reports whether the member at storage index at has a neighbour in dir.
func CanMove(n, at int, dir domain.Direction, key func(i int) float64) bool {
	return neighbour(n, at, dir, key) >= 0
}

// Move swaps the keys of the member at storage index at and its neighbour in dir.
// Storage positions are left alone, so every other member keeps its place.
func Move(n, at int, dir domain.Direction, key func(i int) float64, set func(i int, v float64)) bool {
	other := neighbour(n, at, dir, key)
	if other < 0 {
		return false
	}
	a, b := key(at), key(other)
	set(at, b)
	set(other, a)
	return true
}

// Sections returns the document's sections sorted by order.
func Sections(doc *domain.Document) []domain.Section {
	idx := Sorted(len(doc.Sections), func(i int) float64 { return doc.Sections[i].Order })
	out := make([]domain.Section, len(idx))
	for p, i := range idx {
		out[p] = doc.Sections[i]
	}
	return out
}

// Items returns the section's items sorted by order.
func Items(s domain.Section) []domain.Item {
	idx := Sorted(len(s.Items), func(i int) float64 { return s.Items[i].Order })
	out := make([]domain.Item, len(idx))
	for p, i := range idx {
		out[p] = s.Items[i]
	}
	return out
}
