// Package cidr turns closed address intervals into minimal CIDR block
// covers, and optionally reduces the distinct prefix lengths used by
// that cover to a smaller set at the cost of a bounded entry-count
// increase.
//
// This is a port of split_range()/ipset_reduce() from the original
// iprange tool. The original keeps its per-prefix counters and the
// enabled-prefix mask in global arrays (prefix_counters, prefix_enabled)
// that split_range() mutates as a side effect and ipset_reduce() resets
// before and after use; that design makes split_range() non-reentrant
// and couples counting to printing through a third global
// (split_range_disable_printing). Here that state is an explicit State
// value threaded through every call, so the same decomposition logic can
// run concurrently over independent sets and so counting a set's prefix
// distribution never depends on suppressing output as a side channel.
package cidr

import (
	"sort"

	"iprange/pkg/ipnum"
	"iprange/pkg/model"
)

// State holds the enabled-prefix mask and per-prefix emission counters
// that split_range's recursion consults and updates. The zero value has
// every prefix length enabled.
type State struct {
	enabled  [ipnum.MaxPrefix + 1]bool
	counters [ipnum.MaxPrefix + 1]int
	init     bool
}

// NewState returns a State with every prefix length 0..32 enabled.
func NewState() *State {
	s := &State{}
	s.enableAll()
	return s
}

func (s *State) enableAll() {
	for i := range s.enabled {
		s.enabled[i] = true
	}
	s.init = true
}

func (s *State) lazyInit() {
	if !s.init {
		s.enableAll()
	}
}

// Enable turns a single prefix length on or off.
func (s *State) Enable(prefix int, on bool) {
	s.lazyInit()
	if prefix < 0 || prefix > ipnum.MaxPrefix {
		return
	}
	s.enabled[prefix] = on
}

// EnableOnly restricts the enabled set to exactly the given prefixes.
// Prefix 32 is always left enabled, since otherwise a single leftover
// address could never be covered by any block.
func (s *State) EnableOnly(prefixes []int) {
	for i := range s.enabled {
		s.enabled[i] = false
	}
	for _, p := range prefixes {
		if p >= 0 && p <= ipnum.MaxPrefix {
			s.enabled[p] = true
		}
	}
	s.enabled[ipnum.MaxPrefix] = true
	s.init = true
}

// DisableBelow disables every prefix shorter than min (i.e. every prefix
// length < min), leaving min and all longer prefixes as they were.
// Prefix 32 is always left enabled.
func (s *State) DisableBelow(min int) {
	s.lazyInit()
	for i := 0; i < min && i <= ipnum.MaxPrefix; i++ {
		s.enabled[i] = false
	}
	s.enabled[ipnum.MaxPrefix] = true
}

// Counts returns a copy of the per-prefix emission counters accumulated
// by Split calls against this State.
func (s *State) Counts() [ipnum.MaxPrefix + 1]int {
	return s.counters
}

// ResetCounts zeroes the per-prefix counters without touching the
// enabled mask.
func (s *State) ResetCounts() {
	for i := range s.counters {
		s.counters[i] = 0
	}
}

// Block is one emitted CIDR network.
type Block struct {
	Addr   uint32
	Prefix int
}

// Split recursively decomposes [lo, hi] into the minimal set of CIDR
// blocks drawn from st's enabled prefixes, appending each emitted block
// to out and returning the extended slice. addr/prefix describe the
// network currently being considered; the top-level call always passes
// (0, 0, lo, hi).
//
// Worst case, for lo=0.0.0.1 and hi=255.255.255.254, this emits 62
// blocks across 125 recursive calls; at most 33 calls are nested, one
// per prefix length 0..32.
func Split(st *State, addr uint32, prefix int, lo, hi uint32, out []Block) []Block {
	st.lazyInit()

	if prefix < 0 || prefix > ipnum.MaxPrefix {
		return out
	}

	bc, err := ipnum.Broadcast(addr, prefix)
	if err != nil {
		return out
	}
	if lo < addr || hi > bc {
		return out
	}

	if lo == addr && hi == bc && st.enabled[prefix] {
		st.counters[prefix]++
		return append(out, Block{Addr: addr, Prefix: prefix})
	}

	nextPrefix := prefix + 1
	lowerHalf := addr
	upperHalf := ipnum.SetBit(addr, nextPrefix, true)

	if hi < upperHalf {
		return Split(st, lowerHalf, nextPrefix, lo, hi, out)
	}
	if lo >= upperHalf {
		return Split(st, upperHalf, nextPrefix, lo, hi, out)
	}

	lowerBC, err := ipnum.Broadcast(lowerHalf, nextPrefix)
	if err != nil {
		return out
	}
	out = Split(st, lowerHalf, nextPrefix, lo, lowerBC, out)
	return Split(st, upperHalf, nextPrefix, upperHalf, hi, out)
}

// SplitInterval is a convenience wrapper over Split for a single closed
// interval, starting the recursion from the whole address space.
func SplitInterval(st *State, iv model.Interval, out []Block) []Block {
	return Split(st, 0, 0, iv.Addr, iv.Broadcast, out)
}

// Cover returns the minimal CIDR block cover for every interval in ivs,
// in ascending order. The intervals must already be normalized
// (sorted, disjoint, non-adjacent); Cover does not normalize them
// itself.
func Cover(st *State, ivs []model.Interval) []Block {
	var out []Block
	for _, iv := range ivs {
		out = SplitInterval(st, iv, out)
	}
	return out
}

// Reduce returns a State with the prefix lengths ipset_reduce disables,
// computed by the greedy merge-into-the-next-populated-prefix heuristic
// from the original tool: repeatedly fold the prefix whose merge into the
// next longer populated one adds the fewest entries, so long as doing so
// keeps the total entry count at or under the acceptable ceiling.
//
// acceptableIncreasePct is the ceiling as a percentage of the baseline
// entry count, e.g. 100 allows no increase and 120 allows 20% more
// entries; minAccepted is a floor under which the acceptable ceiling is
// never pushed, even if acceptableIncreasePct would compute something
// smaller.
func Reduce(ivs []model.Interval, acceptableIncreasePct, minAccepted int) *State {
	st := NewState()

	counting := NewState()
	Cover(counting, ivs)
	counters := counting.counters

	total := 0
	for i := 0; i <= ipnum.MaxPrefix; i++ {
		if counters[i] > 0 {
			total++
		} else {
			st.enabled[i] = false
		}
	}
	totalEntries := 0
	for _, c := range counters {
		totalEntries += c
	}

	acceptable := totalEntries * acceptableIncreasePct / 100
	if acceptable < minAccepted {
		acceptable = minAccepted
	}

	for totalEntries < acceptable {
		min, to := -1, -1
		minIncrease := acceptable*10 + 1

		for i := 0; i <= ipnum.MaxPrefix-1; i++ {
			if counters[i] == 0 || !st.enabled[i] {
				continue
			}
			multiplier := 2
			for j := i + 1; j <= ipnum.MaxPrefix; j, multiplier = j+1, multiplier*2 {
				if counters[j] == 0 {
					continue
				}
				increase := counters[i] * (multiplier - 1)
				if increase < minIncrease {
					minIncrease = increase
					min, to = i, j
				}
				break
			}
		}

		if min == -1 || to == -1 || min == to {
			break
		}

		multiplier := 1
		for i := min; i < to; i++ {
			multiplier *= 2
		}
		increase := counters[min]*multiplier - counters[min]

		if totalEntries+increase > acceptable {
			break
		}

		totalEntries += increase
		counters[to] += increase + counters[min]
		counters[min] = 0
		st.enabled[min] = false
	}

	return st
}

// SortBlocks orders blocks by address ascending, then by prefix
// ascending (i.e. the wider network first at equal address); this is
// the order print routines expect.
func SortBlocks(blocks []Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Addr != blocks[j].Addr {
			return blocks[i].Addr < blocks[j].Addr
		}
		return blocks[i].Prefix < blocks[j].Prefix
	})
}
