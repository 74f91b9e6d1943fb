// Package driver composes loaded sets according to the selected Mode
// and produces the records a printer turns into output. It mirrors the
// mode dispatch in the original iprange tool's main(): each mode is a
// small, self-contained composition of ipset.Union/Intersect/Difference
// over the loaded sets, with its own row shape rather than a single
// generic "result".
package driver

import (
	"fmt"

	"iprange/pkg/ipset"
	"iprange/pkg/model"
)

// UnionResult is the outcome of ModeUnion/ModeReduce: a single combined,
// normalized set.
type UnionResult struct {
	Set *ipset.Set
}

// Union merges every set in sets into one normalized set, matching
// MODE_COMBINE (and MODE_REDUCE up to the point reduction is applied
// separately by the caller via pkg/cidr.Reduce).
func Union(sets []*ipset.Set) (*UnionResult, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: no sets to combine", model.ErrInvalidArgument)
	}

	combined := sets[0].Copy()
	combined.Filename = "combined ipset"
	for _, s := range sets[1:] {
		combined.Merge(s)
	}
	combined.Optimize()

	return &UnionResult{Set: combined}, nil
}

// IntersectAll intersects every set in sets pairwise, left to right,
// matching MODE_COMMON. At least two sets are required.
func IntersectAll(sets []*ipset.Set) (*ipset.Set, error) {
	if len(sets) < 2 {
		return nil, fmt.Errorf("%w: at least two sets are required to find their common addresses", model.ErrInvalidArgument)
	}

	common := ipset.Intersect(sets[0], sets[1])
	for _, s := range sets[2:] {
		common = ipset.Intersect(common, s)
	}
	return common, nil
}

// ComplementNext computes (union(firstSets) \ union(nextSets)), matching
// MODE_EXCLUDE_NEXT.
func ComplementNext(firstSets, nextSets []*ipset.Set) (*ipset.Set, error) {
	if len(firstSets) == 0 {
		return nil, fmt.Errorf("%w: no sets given before --exclude-next", model.ErrInvalidArgument)
	}
	if len(nextSets) == 0 {
		return nil, fmt.Errorf("%w: no files given after --exclude-next", model.ErrInvalidArgument)
	}

	excluded := firstSets[0].Copy()
	for _, s := range firstSets[1:] {
		excluded.Merge(s)
	}
	excluded.Optimize()

	for _, s := range nextSets {
		excluded = ipset.Difference(excluded, s)
	}
	return excluded, nil
}

// CompareRow is one row of a pairwise comparison report.
type CompareRow struct {
	Name1       string
	Name2       string
	Entries1    uint64
	Entries2    uint64
	IPs1        uint64
	IPs2        uint64
	CombinedIPs uint64
	CommonIPs   uint64

	set1, set2 *ipset.Set
}

// CompareAll produces one row for every unordered pair of distinct sets
// in sets, matching MODE_COMPARE.
func CompareAll(sets []*ipset.Set) ([]CompareRow, error) {
	if len(sets) < 2 {
		return nil, fmt.Errorf("%w: at least two sets are needed to be compared", model.ErrInvalidArgument)
	}

	var rows []CompareRow
	for i, a := range sets {
		for _, b := range sets[i+1:] {
			rows = append(rows, compareRow(a, b))
		}
	}
	return rows, nil
}

// CompareNext produces one row for every (set in firstSets) x (set in
// nextSets) pair, matching MODE_COMPARE_NEXT.
func CompareNext(firstSets, nextSets []*ipset.Set) ([]CompareRow, error) {
	if len(nextSets) == 0 {
		return nil, fmt.Errorf("%w: no files given after --compare-next", model.ErrInvalidArgument)
	}

	var rows []CompareRow
	for _, a := range firstSets {
		for _, b := range nextSets {
			rows = append(rows, compareRow(a, b))
		}
	}
	return rows, nil
}

// FirstCompareRow is one row of MODE_COMPARE_FIRST: every other set
// compared against the first.
type FirstCompareRow struct {
	Name      string
	Entries   uint64
	UniqueIPs uint64
	CommonIPs uint64

	set *ipset.Set
}

// CompareFirst compares every set after the first against the first set,
// matching MODE_COMPARE_FIRST.
func CompareFirst(sets []*ipset.Set) ([]FirstCompareRow, error) {
	if len(sets) < 2 {
		return nil, fmt.Errorf("%w: at least two sets are needed to be compared", model.ErrInvalidArgument)
	}

	first := sets[0]
	var rows []FirstCompareRow
	for _, s := range sets[1:] {
		combined := ipset.Union(s, first)
		common := s.UniqueIPCount() + first.UniqueIPCount() - combined.UniqueIPCount()
		rows = append(rows, FirstCompareRow{
			Name:      s.Filename,
			Entries:   s.Lines,
			UniqueIPs: s.UniqueIPCount(),
			CommonIPs: common,
			set:       s,
		})
	}
	return rows, nil
}

// CountRow is one row of MODE_COUNT_UNIQUE_ALL: per-set cardinality.
type CountRow struct {
	Name      string
	Entries   uint64
	UniqueIPs uint64

	set *ipset.Set
}

// CountUniqueAll reports entries/unique IPs for every set independently,
// matching MODE_COUNT_UNIQUE_ALL.
func CountUniqueAll(sets []*ipset.Set) []CountRow {
	rows := make([]CountRow, 0, len(sets))
	for _, s := range sets {
		rows = append(rows, CountRow{Name: s.Filename, Entries: s.Lines, UniqueIPs: s.UniqueIPCount(), set: s})
	}
	return rows
}

// CountUniqueMerged reports entries/unique IPs for the union of every
// set, matching MODE_COUNT_UNIQUE_MERGED.
func CountUniqueMerged(sets []*ipset.Set) (CountRow, error) {
	res, err := Union(sets)
	if err != nil {
		return CountRow{}, err
	}
	return CountRow{Name: "combined ipset", Entries: res.Set.Lines, UniqueIPs: res.Set.UniqueIPCount(), set: res.Set}, nil
}

func compareRow(a, b *ipset.Set) CompareRow {
	combined := ipset.Union(a, b)
	return CompareRow{
		Name1:       a.Filename,
		Name2:       b.Filename,
		Entries1:    a.Lines,
		Entries2:    b.Lines,
		IPs1:        a.UniqueIPCount(),
		IPs2:        b.UniqueIPCount(),
		CombinedIPs: combined.UniqueIPCount(),
		CommonIPs:   a.UniqueIPCount() + b.UniqueIPCount() - combined.UniqueIPCount(),
		set1:        a,
		set2:        b,
	}
}
