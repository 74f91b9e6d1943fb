// Package ipset implements the canonical IP-set representation: a named,
// growable sequence of intervals with an opportunistically maintained
// "already sorted and disjoint" flag, the merge-sort-coalesce normalizer,
// and the linear two-pointer union/intersect/difference operations.
//
// This is a direct port of ipset_create()/ipset_add()/ipset_optimize()/
// ipset_common()/ipset_exclude()/ipset_merge() from the original iprange
// tool. Where the C hand-rolls a geometric-growth array (entries_max,
// realloc), Go's append already gives amortized doubling; that piece of
// the original is deliberately not reproduced — see DESIGN.md.
package ipset

import (
	"sort"

	"iprange/pkg/model"
)

// Set is a named, append-only buffer of intervals.
type Set struct {
	Filename  string
	Lines     uint64
	UniqueIPs uint64
	Optimized bool

	entries []model.Interval
}

// New creates an empty set with the given display name.
func New(filename string) *Set {
	if filename == "" {
		filename = "stdin"
	}
	return &Set{Filename: filename, Optimized: true}
}

// Entries returns the current number of stored intervals.
func (s *Set) Entries() int { return len(s.entries) }

// Intervals returns the set's intervals. Callers must not mutate the
// returned slice; it is the set's own backing storage.
func (s *Set) Intervals() []model.Interval { return s.entries }

// Append adds one interval to the set, maintaining Lines and UniqueIPs
// unconditionally, and the Optimized invariant opportunistically: if the
// set was optimized before the append and the new interval extends or
// follows the tail without overlap, Optimized stays true; otherwise it is
// cleared and a subsequent Optimize call is required.
func (s *Set) Append(iv model.Interval) {
	s.Lines++
	s.UniqueIPs += iv.Width()

	n := len(s.entries)
	if s.Optimized && n > 0 {
		last := &s.entries[n-1]
		switch {
		case iv.Addr == last.Broadcast+1:
			last.Broadcast = iv.Broadcast
			return
		case iv.Addr > last.Broadcast:
			s.entries = append(s.entries, iv)
			return
		default:
			s.Optimized = false
		}
	}
	s.entries = append(s.entries, iv)
}

// AppendRange is a convenience for appending a raw [from, to] interval,
// swapping the bounds if given in reverse order.
func (s *Set) AppendRange(from, to uint32) {
	if from > to {
		from, to = to, from
	}
	s.Append(model.Interval{Addr: from, Broadcast: to})
}

// Optimize sorts the set's intervals and coalesces overlapping or
// adjacent ones into the canonical, maximally-coalesced form. It is
// idempotent and preserves Lines while recomputing UniqueIPs.
func (s *Set) Optimize() {
	if s.Optimized {
		return
	}

	n := len(s.entries)
	lines := s.Lines

	sort.Slice(s.entries, func(i, j int) bool {
		if s.entries[i].Addr != s.entries[j].Addr {
			return s.entries[i].Addr < s.entries[j].Addr
		}
		return s.entries[i].Broadcast > s.entries[j].Broadcast
	})

	merged := make([]model.Interval, 0, n)
	if n > 0 {
		lo, hi := s.entries[0].Addr, s.entries[0].Broadcast
		for i := 1; i < n; i++ {
			iv := s.entries[i]
			switch {
			case iv.Broadcast <= hi:
				// entirely swallowed by the running interval
			case iv.Addr <= hi+1:
				hi = iv.Broadcast
			default:
				merged = append(merged, model.Interval{Addr: lo, Broadcast: hi})
				lo, hi = iv.Addr, iv.Broadcast
			}
		}
		merged = append(merged, model.Interval{Addr: lo, Broadcast: hi})
	}

	s.entries = merged
	s.Optimized = true
	s.Lines = lines
	s.recountUnique()
}

func (s *Set) recountUnique() {
	var total uint64
	for _, iv := range s.entries {
		total += iv.Width()
	}
	s.UniqueIPs = total
}

// ensureOptimized optimizes in place if needed; called lazily by every
// operation that requires a normalized input, per spec.
func ensureOptimized(s *Set) {
	if !s.Optimized {
		s.Optimize()
	}
}

// Copy returns a new set with the same entries, name and counters.
func (s *Set) Copy() *Set {
	out := &Set{
		Filename:  s.Filename,
		Lines:     s.Lines,
		UniqueIPs: s.UniqueIPs,
		Optimized: s.Optimized,
		entries:   append([]model.Interval(nil), s.entries...),
	}
	return out
}

// Merge appends all of add's entries into s, clearing s's Optimized flag
// (the result is never optimized even if both inputs were).
func (s *Set) Merge(add *Set) {
	s.entries = append(s.entries, add.entries...)
	s.Lines += add.Lines
	s.Optimized = false
}

// Union returns a fresh, normalized set containing every address in a or
// b. It is implemented as append-then-normalize (an O(n+m) two-pointer
// variant would be equally valid, but this mirrors
// ipset_merge()+ipset_optimize() directly).
func Union(a, b *Set) *Set {
	out := &Set{Filename: "union", entries: append([]model.Interval(nil), a.entries...)}
	out.entries = append(out.entries, b.entries...)
	out.Lines = a.Lines + b.Lines
	out.Optimized = false
	out.Optimize()
	return out
}

// Intersect returns a fresh, normalized set containing every address
// present in both a and b (ipset_common()).
func Intersect(a, b *Set) *Set {
	ensureOptimized(a)
	ensureOptimized(b)

	out := &Set{Filename: "common", Optimized: true}
	out.Lines = a.Lines + b.Lines

	n1, n2 := len(a.entries), len(b.entries)
	if n1 == 0 || n2 == 0 {
		return out
	}

	i1, i2 := 0, 0
	for i1 < n1 && i2 < n2 {
		iv1, iv2 := a.entries[i1], b.entries[i2]

		if iv1.Addr > iv2.Broadcast {
			i2++
			continue
		}
		if iv2.Addr > iv1.Broadcast {
			i1++
			continue
		}

		lo := iv1.Addr
		if iv2.Addr > lo {
			lo = iv2.Addr
		}

		var hi uint32
		if iv1.Broadcast < iv2.Broadcast {
			hi = iv1.Broadcast
			i1++
		} else {
			hi = iv2.Broadcast
			i2++
		}

		out.appendNormalized(model.Interval{Addr: lo, Broadcast: hi})
	}

	return out
}

// Difference returns a fresh, normalized set containing every address in
// a that is not in b (ipset_exclude()).
func Difference(a, b *Set) *Set {
	ensureOptimized(a)
	ensureOptimized(b)

	out := &Set{Filename: a.Filename, Optimized: true}
	out.Lines = a.Lines + b.Lines

	n1, n2 := len(a.entries), len(b.entries)
	if n1 == 0 {
		return out
	}
	if n2 == 0 {
		for _, iv := range a.entries {
			out.appendNormalized(iv)
		}
		return out
	}

	i1, i2 := 0, 0
	lo1, hi1 := a.entries[0].Addr, a.entries[0].Broadcast
	lo2, hi2 := b.entries[0].Addr, b.entries[0].Broadcast

	for i1 < n1 && i2 < n2 {
		switch {
		case lo1 > hi2:
			i2++
			if i2 < n2 {
				lo2, hi2 = b.entries[i2].Addr, b.entries[i2].Broadcast
			}
		case lo2 > hi1:
			out.appendNormalized(model.Interval{Addr: lo1, Broadcast: hi1})
			i1++
			if i1 < n1 {
				lo1, hi1 = a.entries[i1].Addr, a.entries[i1].Broadcast
			}
		default:
			if lo1 < lo2 {
				out.appendNormalized(model.Interval{Addr: lo1, Broadcast: lo2 - 1})
				lo1 = lo2
			}
			switch {
			case hi1 == hi2:
				i1++
				if i1 < n1 {
					lo1, hi1 = a.entries[i1].Addr, a.entries[i1].Broadcast
				}
				i2++
				if i2 < n2 {
					lo2, hi2 = b.entries[i2].Addr, b.entries[i2].Broadcast
				}
			case hi1 < hi2:
				i1++
				if i1 < n1 {
					lo1, hi1 = a.entries[i1].Addr, a.entries[i1].Broadcast
				}
			default:
				lo1 = hi2 + 1
				i2++
				if i2 < n2 {
					lo2, hi2 = b.entries[i2].Addr, b.entries[i2].Broadcast
				}
			}
		}
	}

	if i1 < n1 {
		out.appendNormalized(model.Interval{Addr: lo1, Broadcast: hi1})
		for i1++; i1 < n1; i1++ {
			out.appendNormalized(a.entries[i1])
		}
	}

	return out
}

// appendNormalized appends an interval that the caller guarantees arrives
// in ascending, disjoint-or-adjacent order relative to the current tail;
// used by the set-operation producers, which already emit in that order.
func (out *Set) appendNormalized(iv model.Interval) {
	out.entries = append(out.entries, iv)
	out.UniqueIPs += iv.Width()
}

// UniqueIPCount optimizes the set if necessary and returns UniqueIPs.
func (s *Set) UniqueIPCount() uint64 {
	ensureOptimized(s)
	return s.UniqueIPs
}
