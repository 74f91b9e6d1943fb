package driver

import (
	"testing"

	"iprange/pkg/ipset"
	"iprange/pkg/model"
)

func iv(lo, hi uint32) model.Interval { return model.Interval{Addr: lo, Broadcast: hi} }

func setOf(name string, ivs ...model.Interval) *ipset.Set {
	s := ipset.New(name)
	for _, v := range ivs {
		s.Append(v)
	}
	return s
}

func TestUnionOfTwoAdjacentCIDRs(t *testing.T) {
	// 10.0.0.0/30 + 10.0.0.4/30 -> a single 10.0.0.0-10.0.0.7 range.
	a := setOf("a", iv(0x0a000000, 0x0a000003))
	b := setOf("b", iv(0x0a000004, 0x0a000007))

	res, err := Union([]*ipset.Set{a, b})
	if err != nil {
		t.Fatalf("Union: %v", err)
	}
	if got, want := res.Set.Entries(), 1; got != want {
		t.Fatalf("Entries() = %d, want %d", got, want)
	}
	entry := res.Set.Intervals()[0]
	if entry.Addr != 0x0a000000 || entry.Broadcast != 0x0a000007 {
		t.Fatalf("got %+v, want [10.0.0.0, 10.0.0.7]", entry)
	}
}

func TestUnionRequiresAtLeastOneSet(t *testing.T) {
	if _, err := Union(nil); err == nil {
		t.Fatalf("Union(nil) should fail")
	}
}

func TestIntersectAllRequiresTwoSets(t *testing.T) {
	if _, err := IntersectAll([]*ipset.Set{setOf("a", iv(0, 1))}); err == nil {
		t.Fatalf("IntersectAll with one set should fail")
	}
}

func TestComplementNext(t *testing.T) {
	// A = 10.0.0.0/24, B = 10.0.0.128-10.0.0.200
	a := setOf("a", iv(0x0a000000, 0x0a0000ff))
	b := setOf("b", iv(0x0a000080, 0x0a0000c8))

	res, err := ComplementNext([]*ipset.Set{a}, []*ipset.Set{b})
	if err != nil {
		t.Fatalf("ComplementNext: %v", err)
	}

	want := []model.Interval{
		iv(0x0a000000, 0x0a00007f),
		iv(0x0a0000c9, 0x0a0000ff),
	}
	if got := res.Intervals(); len(got) != len(want) {
		t.Fatalf("got %d intervals, want %d: %v", len(got), len(want), got)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("interval %d = %+v, want %+v", i, got[i], want[i])
			}
		}
	}
}

func TestCompareIdenticalSingleHostSets(t *testing.T) {
	a := setOf("a", iv(0x01010101, 0x01010101))
	b := setOf("b", iv(0x01010101, 0x01010101))

	rows, err := CompareAll([]*ipset.Set{a, b})
	if err != nil {
		t.Fatalf("CompareAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.CommonIPs != 1 || row.CombinedIPs != 1 {
		t.Fatalf("row = %+v, want common=1 combined=1", row)
	}
}

func TestCompareAllPairsUpOnce(t *testing.T) {
	a := setOf("a", iv(0, 9))
	b := setOf("b", iv(5, 14))
	c := setOf("c", iv(100, 109))

	rows, err := CompareAll([]*ipset.Set{a, b, c})
	if err != nil {
		t.Fatalf("CompareAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (one per unordered pair)", len(rows))
	}
}

func TestCompareFirstUsesFirstSetAsPivot(t *testing.T) {
	first := setOf("first", iv(0, 9))
	other := setOf("other", iv(5, 14))

	rows, err := CompareFirst([]*ipset.Set{first, other})
	if err != nil {
		t.Fatalf("CompareFirst: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Name != "other" {
		t.Fatalf("row name = %q, want %q", rows[0].Name, "other")
	}
	if rows[0].CommonIPs != 5 {
		t.Fatalf("CommonIPs = %d, want 5", rows[0].CommonIPs)
	}
}

func TestCountUniqueAllIsPerSet(t *testing.T) {
	a := setOf("a", iv(0, 9))
	b := setOf("b", iv(0, 99))

	rows := CountUniqueAll([]*ipset.Set{a, b})
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].UniqueIPs != 10 || rows[1].UniqueIPs != 100 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestCountUniqueMergedCombinesAllSets(t *testing.T) {
	a := setOf("a", iv(0, 9))
	b := setOf("b", iv(10, 19))

	row, err := CountUniqueMerged([]*ipset.Set{a, b})
	if err != nil {
		t.Fatalf("CountUniqueMerged: %v", err)
	}
	if row.UniqueIPs != 20 {
		t.Fatalf("UniqueIPs = %d, want 20", row.UniqueIPs)
	}
}
