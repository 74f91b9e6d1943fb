package ipset

import (
	"testing"

	"iprange/pkg/model"
)

func iv(lo, hi uint32) model.Interval { return model.Interval{Addr: lo, Broadcast: hi} }

func TestAppendOpportunisticOptimized(t *testing.T) {
	s := New("test")

	s.Append(iv(10, 20))
	if !s.Optimized {
		t.Fatalf("single append should keep Optimized true")
	}

	s.Append(iv(21, 30)) // adjacent, extends
	if !s.Optimized || s.Entries() != 1 {
		t.Fatalf("adjacent append should extend and stay optimized, got entries=%d optimized=%v", s.Entries(), s.Optimized)
	}

	s.Append(iv(40, 50)) // disjoint, increasing
	if !s.Optimized || s.Entries() != 2 {
		t.Fatalf("disjoint increasing append should stay optimized, got entries=%d optimized=%v", s.Entries(), s.Optimized)
	}

	s.Append(iv(1, 2)) // out of order
	if s.Optimized {
		t.Fatalf("out-of-order append should clear Optimized")
	}
}

func TestOptimizeIdempotent(t *testing.T) {
	s := New("test")
	s.Append(iv(100, 110))
	s.Append(iv(1, 5))
	s.Append(iv(6, 10))  // adjacent to previous once sorted
	s.Append(iv(50, 60)) // overlaps nothing

	s.Optimize()
	first := append([]model.Interval(nil), s.Intervals()...)
	firstUnique := s.UniqueIPs

	s.Optimize() // idempotent
	if len(s.Intervals()) != len(first) {
		t.Fatalf("second Optimize changed entry count: %d vs %d", len(s.Intervals()), len(first))
	}
	for i := range first {
		if s.Intervals()[i] != first[i] {
			t.Fatalf("second Optimize changed entries at %d: %v vs %v", i, s.Intervals()[i], first[i])
		}
	}
	if s.UniqueIPs != firstUnique {
		t.Fatalf("second Optimize changed UniqueIPs: %d vs %d", s.UniqueIPs, firstUnique)
	}

	want := []model.Interval{iv(1, 10), iv(50, 60), iv(100, 110)}
	if len(s.Intervals()) != len(want) {
		t.Fatalf("Optimize() = %v, want %v", s.Intervals(), want)
	}
	for i := range want {
		if s.Intervals()[i] != want[i] {
			t.Fatalf("Optimize()[%d] = %v, want %v", i, s.Intervals()[i], want[i])
		}
	}
}

func TestUniqueIPsSumsAcrossCoalescedEntries(t *testing.T) {
	s := New("test")
	s.Append(iv(0, 9))  // 10 addrs
	s.Append(iv(10, 19)) // adjacent, 10 more
	s.Optimize()

	if got, want := s.Entries(), 1; got != want {
		t.Fatalf("Entries() = %d, want %d", got, want)
	}
	if got, want := s.UniqueIPs, uint64(20); got != want {
		t.Fatalf("UniqueIPs = %d, want %d", got, want)
	}
}

func TestUnionIdempotentAndCommutative(t *testing.T) {
	a := New("a")
	a.Append(iv(0, 9))
	a.Append(iv(20, 29))

	b := New("b")
	b.Append(iv(5, 24))

	ab := Union(a, b)
	ba := Union(b, a)

	if ab.UniqueIPCount() != ba.UniqueIPCount() {
		t.Fatalf("Union not commutative: %d vs %d", ab.UniqueIPCount(), ba.UniqueIPCount())
	}

	again := Union(ab, ab)
	if again.UniqueIPCount() != ab.UniqueIPCount() {
		t.Fatalf("Union(x, x) changed unique IP count: %d vs %d", again.UniqueIPCount(), ab.UniqueIPCount())
	}
	if again.Entries() != ab.Entries() {
		t.Fatalf("Union(x, x) changed entry count: %d vs %d", again.Entries(), ab.Entries())
	}
}

func TestIntersectIsSubsetAndInclusionExclusion(t *testing.T) {
	a := New("a")
	a.Append(iv(0, 19))

	b := New("b")
	b.Append(iv(10, 29))

	common := Intersect(a, b)
	union := Union(a, b)

	if common.UniqueIPCount() != 10 {
		t.Fatalf("Intersect unique IPs = %d, want 10", common.UniqueIPCount())
	}

	// inclusion-exclusion: |A| + |B| - |A∩B| == |A∪B|
	if got, want := a.UniqueIPCount()+b.UniqueIPCount()-common.UniqueIPCount(), union.UniqueIPCount(); got != want {
		t.Fatalf("inclusion-exclusion identity failed: %d != %d", got, want)
	}
}

func TestDifferenceSelfIsEmptyAndWithEmptyIsIdentity(t *testing.T) {
	a := New("a")
	a.Append(iv(0, 19))
	a.Append(iv(30, 39))
	a.Optimize()

	empty := New("empty")

	selfDiff := Difference(a, a)
	if selfDiff.UniqueIPCount() != 0 {
		t.Fatalf("Difference(a, a) unique IPs = %d, want 0", selfDiff.UniqueIPCount())
	}

	identity := Difference(a, empty)
	if identity.UniqueIPCount() != a.UniqueIPCount() {
		t.Fatalf("Difference(a, empty) unique IPs = %d, want %d", identity.UniqueIPCount(), a.UniqueIPCount())
	}
}

func TestCopyIsIndependent(t *testing.T) {
	a := New("a")
	a.Append(iv(0, 9))

	b := a.Copy()
	b.Append(iv(100, 109))

	if a.Entries() != 1 {
		t.Fatalf("mutating the copy affected the original: entries=%d", a.Entries())
	}
}
