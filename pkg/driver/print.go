package driver

import (
	"bufio"
	"fmt"
	"io"

	"iprange/pkg/addrparse"
	"iprange/pkg/cidr"
	"iprange/pkg/ipset"
	"iprange/pkg/model"
	"iprange/pkg/snapshot"
)

// Print renders s's entries to w in the requested mode, optimizing s
// first if necessary, matching ipset_print()'s lazy-optimize-then-print
// behavior. st controls which CIDR prefixes PrintCIDR may use (the
// --min-prefix/--prefixes/--ipset-reduce restrictions); a nil st means
// every prefix is allowed, and is ignored by every mode but PrintCIDR.
func Print(w io.Writer, s *ipset.Set, mode model.PrintMode, opt model.PrintOptions, st *cidr.State) error {
	ensureOptimized(s)
	bw := bufio.NewWriter(w)

	switch mode {
	case model.PrintBinary:
		if err := snapshot.Write(bw, s.Intervals(), snapshot.Meta{
			Optimized:  s.Optimized,
			Compressed: opt.Compress,
			Lines:      s.Lines,
			UniqueIPs:  s.UniqueIPs,
		}); err != nil {
			return err
		}
	case model.PrintRange:
		for _, iv := range s.Intervals() {
			printRange(bw, iv, opt)
		}
	case model.PrintSingleIPs:
		for _, iv := range s.Intervals() {
			for a := iv.Addr; ; a++ {
				fmt.Fprintf(bw, "%s%s%s\n", opt.PrefixIPs, addrparse.FormatAddr(a), opt.SuffixIPs)
				if a == iv.Broadcast {
					break
				}
			}
		}
	default: // model.PrintCIDR
		if st == nil {
			st = cidr.NewState()
		}
		blocks := cidr.Cover(st, s.Intervals())
		for _, b := range blocks {
			printBlock(bw, b, opt)
		}
	}

	return bw.Flush()
}

func printBlock(w *bufio.Writer, b cidr.Block, opt model.PrintOptions) {
	if b.Prefix < 32 {
		fmt.Fprintf(w, "%s%s/%d%s\n", opt.PrefixNets, addrparse.FormatAddr(b.Addr), b.Prefix, opt.SuffixNets)
	} else {
		fmt.Fprintf(w, "%s%s%s\n", opt.PrefixIPs, addrparse.FormatAddr(b.Addr), opt.SuffixIPs)
	}
}

func printRange(w *bufio.Writer, iv model.Interval, opt model.PrintOptions) {
	if iv.Addr != iv.Broadcast {
		fmt.Fprintf(w, "%s%s-%s%s\n", opt.PrefixNets, addrparse.FormatAddr(iv.Addr), addrparse.FormatAddr(iv.Broadcast), opt.SuffixNets)
		return
	}
	fmt.Fprintf(w, "%s%s%s\n", opt.PrefixIPs, addrparse.FormatAddr(iv.Broadcast), opt.SuffixIPs)
}

func ensureOptimized(s *ipset.Set) {
	if !s.Optimized {
		s.Optimize()
	}
}
