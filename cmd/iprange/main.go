// Command iprange manipulates sets of IPv4 addresses expressed as
// ranges, CIDR blocks and hostnames: combining, intersecting,
// excluding, comparing and reducing them. Its argument grammar is a
// direct port of main()'s argv loop in the original C tool: mode flags
// and print-option flags may appear interleaved with file operands, and
// a file operand may be immediately followed by "as NAME" to rename it
// in reports. That interleaving is why this file walks os.Args by hand
// instead of using flag.FlagSet, which requires flags to precede
// positional arguments — see DESIGN.md.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"iprange/pkg/addrparse"
	"iprange/pkg/cidr"
	"iprange/pkg/driver"
	"iprange/pkg/geoannotate"
	"iprange/pkg/ipnum"
	"iprange/pkg/ipset"
	"iprange/pkg/model"
	"iprange/pkg/resolver"
	"iprange/pkg/snapshot"
)

const prog = "iprange"

// config accumulates everything the argv loop discovers before any
// ipset is loaded, mirroring the original main()'s local variables.
type config struct {
	mode   model.Mode
	print  model.PrintMode
	header bool

	readSecond bool

	defaultPrefix int
	fixNetwork    bool

	minPrefix      int
	explicitPrefix []int

	reduceFactor      int
	reduceMinAccepted int

	printOpt model.PrintOptions

	debug bool

	resolverCachePath string
	resolverCacheTTL  time.Duration
	snapshotCompress  bool
	geoASNPath        string
	geoCityPath       string

	outputPath        string
	resolverWorkers   int
	resolverRateLimit float64
}

func defaultConfig() config {
	return config{
		mode:              model.ModeUnion,
		print:             model.PrintCIDR,
		defaultPrefix:     ipnum.MaxPrefix,
		fixNetwork:        true,
		minPrefix:         0,
		reduceFactor:      120,
		reduceMinAccepted: 16384,
		resolverWorkers:   8,
	}
}

// fileRef is one positional operand: a path (or "" for stdin) plus the
// trailing "as NAME" alias, if any.
type fileRef struct {
	path  string
	alias string
}

func main() {
	log.SetFlags(0)

	cfg := defaultConfig()
	var firstRefs, secondRefs []fileRef

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		a := args[i]
		next := func() (string, bool) {
			if i+1 < len(args) {
				return args[i+1], true
			}
			return "", false
		}

		switch {
		case a == "as" && hasNext(args, i):
			v, _ := next()
			i++
			if cfg.readSecond {
				if len(secondRefs) > 0 {
					secondRefs[len(secondRefs)-1].alias = v
				}
			} else if len(firstRefs) > 0 {
				firstRefs[len(firstRefs)-1].alias = v
			}

		case a == "--min-prefix":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 32 {
				fmt.Fprintf(os.Stderr, "%s: Only prefixes 1 to 31 can be disabled. %s is invalid.\n", prog, v)
				os.Exit(1)
			}
			cfg.minPrefix = n

		case a == "--prefixes":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			prefixes, err := parsePrefixList(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", prog, err)
				os.Exit(1)
			}
			cfg.explicitPrefix = prefixes

		case a == "--default-prefix" || a == "-p":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			n, err := strconv.Atoi(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: invalid --default-prefix %q\n", prog, v)
				os.Exit(1)
			}
			cfg.defaultPrefix = n

		case a == "--ipset-reduce" || a == "--reduce-factor":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			n, _ := strconv.Atoi(v)
			cfg.reduceFactor = 100 + n
			cfg.mode = model.ModeReduce

		case a == "--ipset-reduce-entries" || a == "--reduce-entries":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			n, _ := strconv.Atoi(v)
			cfg.reduceMinAccepted = n
			cfg.mode = model.ModeReduce

		case a == "--optimize" || a == "--combine" || a == "--merge" || a == "--union" || a == "--union-all" || a == "-J":
			cfg.mode = model.ModeUnion

		case a == "--common" || a == "--intersect" || a == "--intersect-all":
			cfg.mode = model.ModeIntersectAll

		case a == "--exclude-next" || a == "--complement-next" || a == "--complement":
			cfg.mode = model.ModeComplementNext
			cfg.readSecond = true
			if len(firstRefs) == 0 {
				fmt.Fprintf(os.Stderr, "%s: An ipset is needed before --complement-next\n", prog)
				os.Exit(1)
			}

		case a == "--compare":
			cfg.mode = model.ModeCompareAll

		case a == "--compare-first":
			cfg.mode = model.ModeCompareFirst

		case a == "--compare-next":
			cfg.mode = model.ModeCompareNext
			cfg.readSecond = true
			if len(firstRefs) == 0 {
				fmt.Fprintf(os.Stderr, "%s: An ipset is needed before --compare-next\n", prog)
				os.Exit(1)
			}

		case a == "--count-unique" || a == "-C":
			cfg.mode = model.ModeCountUnique

		case a == "--count-unique-all":
			cfg.mode = model.ModeCountUniqueAll

		case a == "--help" || a == "-h":
			usage()

		case a == "-v":
			cfg.debug = true

		case a == "--print-ranges" || a == "-j":
			cfg.print = model.PrintRange

		case a == "--print-binary":
			cfg.print = model.PrintBinary

		case a == "--print-single-ips" || a == "-1":
			cfg.print = model.PrintSingleIPs

		case a == "--print-prefix":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.printOpt.PrefixIPs = v
			cfg.printOpt.PrefixNets = v

		case a == "--print-prefix-ips":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.printOpt.PrefixIPs = v

		case a == "--print-prefix-nets":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.printOpt.PrefixNets = v

		case a == "--print-suffix":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.printOpt.SuffixIPs = v
			cfg.printOpt.SuffixNets = v

		case a == "--print-suffix-ips":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.printOpt.SuffixIPs = v

		case a == "--print-suffix-nets":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.printOpt.SuffixNets = v

		case a == "--header":
			cfg.header = true

		case a == "--dont-fix-network":
			cfg.fixNetwork = false

		case a == "--has-compare" || a == "--has-reduce":
			fmt.Fprintln(os.Stderr, "yes, compare and reduce is present.")
			os.Exit(0)

		case a == "--resolver-cache":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.resolverCachePath = v

		case a == "--resolver-cache-ttl":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			d, err := time.ParseDuration(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: invalid --resolver-cache-ttl %q\n", prog, v)
				os.Exit(1)
			}
			cfg.resolverCacheTTL = d

		case a == "--snapshot-compress":
			cfg.snapshotCompress = true

		case a == "--geo-asn-db":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.geoASNPath = v

		case a == "--geo-city-db":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.geoCityPath = v

		case a == "--output" || a == "-o":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			cfg.outputPath = v

		case a == "--resolver-workers":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "%s: invalid --resolver-workers %q\n", prog, v)
				os.Exit(1)
			}
			cfg.resolverWorkers = n

		case a == "--resolver-rate-limit":
			v, ok := next()
			if !ok {
				usage()
			}
			i++
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				fmt.Fprintf(os.Stderr, "%s: invalid --resolver-rate-limit %q\n", prog, v)
				os.Exit(1)
			}
			cfg.resolverRateLimit = f

		default:
			ref := fileRef{path: a}
			if a == "-" {
				ref.path = ""
			}
			if cfg.readSecond {
				secondRefs = append(secondRefs, ref)
			} else {
				firstRefs = append(firstRefs, ref)
			}
		}
	}

	cfg.printOpt.Header = cfg.header
	cfg.printOpt.Compress = cfg.snapshotCompress

	if len(firstRefs) == 0 {
		firstRefs = append(firstRefs, fileRef{})
	}

	run(cfg, firstRefs, secondRefs)
}

func hasNext(args []string, i int) bool { return i+1 < len(args) }

func run(cfg config, firstRefs, secondRefs []fileRef) {
	ctx := context.Background()

	res, err := buildResolver(cfg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	if c, ok := res.(*resolver.Cached); ok {
		defer c.Close()
	}

	loadOpt := driver.LoadOptions{
		AddrOptions: addrparse.Options{DefaultPrefix: cfg.defaultPrefix, FixNetwork: cfg.fixNetwork},
		Resolver:    res,
		ResolveAll: resolver.ResolveAllConfig{
			Workers:   cfg.resolverWorkers,
			RateLimit: cfg.resolverRateLimit,
		},
		Debug: cfg.debug,
	}

	first := loadAll(ctx, firstRefs, loadOpt)
	second := loadAll(ctx, secondRefs, loadOpt)

	var annotator *geoannotate.Readers
	if cfg.geoASNPath != "" || cfg.geoCityPath != "" {
		annotator, err = geoannotate.Open(cfg.geoASNPath, cfg.geoCityPath)
		if err != nil {
			log.Fatalf("ERROR: %v", err)
		}
		defer annotator.Close()
	}

	out, err := openOutput(cfg.outputPath)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer out.Close()

	switch cfg.mode {
	case model.ModeUnion, model.ModeReduce, model.ModeCountUnique:
		runCombine(cfg, out, first)

	case model.ModeIntersectAll:
		runCommon(cfg, out, first)

	case model.ModeComplementNext:
		runExcludeNext(cfg, out, first, second)

	case model.ModeCompareAll:
		runCompare(cfg, out, first, annotator)

	case model.ModeCompareNext:
		runCompareNext(cfg, out, first, second, annotator)

	case model.ModeCompareFirst:
		runCompareFirst(cfg, out, first, annotator)

	case model.ModeCountUniqueAll:
		runCountUniqueAll(cfg, out, first, annotator)

	default:
		fmt.Fprintf(os.Stderr, "%s: Unknown mode.\n", prog)
		os.Exit(1)
	}
}

func buildResolver(cfg config) (resolver.Resolver, error) {
	var r resolver.Resolver = &resolver.Net{}
	if cfg.resolverCachePath == "" {
		return r, nil
	}
	return resolver.OpenCache(cfg.resolverCachePath, r, cfg.resolverCacheTTL)
}

// stdoutWriteCloser adapts os.Stdout to io.WriteCloser without ever
// closing the process's real stdout handle.
type stdoutWriteCloser struct{ io.Writer }

func (stdoutWriteCloser) Close() error { return nil }

// lockedFile wraps an output file opened for a driver run, releasing
// its advisory flock before closing the handle.
type lockedFile struct{ f *os.File }

func (l lockedFile) Write(p []byte) (int, error) { return l.f.Write(p) }

func (l lockedFile) Close() error {
	if err := snapshot.Unlock(l.f); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// openOutput opens path for writing and takes an advisory exclusive
// lock on it for the duration of the run, so two driver invocations
// racing on the same output file don't interleave their writes. An
// empty path writes to stdout, which is never locked.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return stdoutWriteCloser{os.Stdout}, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrIO, path, err)
	}
	if err := snapshot.Lock(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		snapshot.Unlock(f)
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", model.ErrIO, path, err)
	}
	return lockedFile{f}, nil
}

func loadAll(ctx context.Context, refs []fileRef, opt driver.LoadOptions) []*ipset.Set {
	sets := make([]*ipset.Set, 0, len(refs))
	for _, ref := range refs {
		s, err := driver.LoadFile(ctx, ref.path, opt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", prog, err)
			if errors.Is(err, model.ErrIO) {
				continue
			}
			os.Exit(1)
		}
		if ref.alias != "" {
			s.Filename = ref.alias
		}
		sets = append(sets, s)
	}
	if len(refs) > 0 && len(sets) == 0 {
		os.Exit(1)
	}
	return sets
}

func runCombine(cfg config, w io.Writer, sets []*ipset.Set) {
	res, err := driver.Union(sets)
	fatalIf(err)

	if cfg.mode == model.ModeReduce {
		st := cidr.Reduce(res.Set.Intervals(), cfg.reduceFactor, cfg.reduceMinAccepted)
		applyPrefixFlags(cfg, st)
		fatalIf(driver.Print(w, res.Set, cfg.print, cfg.printOpt, st))
		return
	}

	if cfg.mode == model.ModeCountUnique {
		row, err := driver.CountUniqueMerged(sets)
		fatalIf(err)
		fatalIf(driver.WriteCountUniqueMerged(w, row, cfg.header))
		return
	}

	st := cidr.NewState()
	applyPrefixFlags(cfg, st)
	fatalIf(driver.Print(w, res.Set, cfg.print, cfg.printOpt, st))
}

func runCommon(cfg config, w io.Writer, sets []*ipset.Set) {
	common, err := driver.IntersectAll(sets)
	fatalIf(err)
	st := cidr.NewState()
	applyPrefixFlags(cfg, st)
	fatalIf(driver.Print(w, common, cfg.print, cfg.printOpt, st))
}

func runExcludeNext(cfg config, w io.Writer, first, second []*ipset.Set) {
	excluded, err := driver.ComplementNext(first, second)
	fatalIf(err)
	st := cidr.NewState()
	applyPrefixFlags(cfg, st)
	fatalIf(driver.Print(w, excluded, cfg.print, cfg.printOpt, st))
}

func runCompare(cfg config, w io.Writer, sets []*ipset.Set, annotator *geoannotate.Readers) {
	rows, err := driver.CompareAll(sets)
	fatalIf(err)
	fatalIf(driver.WriteCompare(w, rows, cfg.header, annotator))
}

func runCompareNext(cfg config, w io.Writer, first, second []*ipset.Set, annotator *geoannotate.Readers) {
	rows, err := driver.CompareNext(first, second)
	fatalIf(err)
	fatalIf(driver.WriteCompare(w, rows, cfg.header, annotator))
}

func runCompareFirst(cfg config, w io.Writer, sets []*ipset.Set, annotator *geoannotate.Readers) {
	rows, err := driver.CompareFirst(sets)
	fatalIf(err)
	fatalIf(driver.WriteCompareFirst(w, rows, cfg.header, annotator))
}

func runCountUniqueAll(cfg config, w io.Writer, sets []*ipset.Set, annotator *geoannotate.Readers) {
	rows := driver.CountUniqueAll(sets)
	fatalIf(driver.WriteCountUniqueAll(w, rows, cfg.header, annotator))
}

func applyPrefixFlags(cfg config, st *cidr.State) {
	if len(cfg.explicitPrefix) > 0 {
		st.EnableOnly(cfg.explicitPrefix)
	}
	if cfg.minPrefix > 0 {
		st.DisableBelow(cfg.minPrefix)
	}
}

func fatalIf(err error) {
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func parsePrefixList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 || n > 32 {
			return nil, fmt.Errorf("only prefixes from 1 to 32 can be set (32 is always enabled): %q is invalid", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s: an IPv4 address set manipulation tool

Usage: %s [options] file1 [as NAME] [file2 [as NAME] ...]

Mode flags (last one wins):
  --combine, --union, --union-all, -J     union of all sets (default)
  --common, --intersect, --intersect-all  intersection of all sets
  --exclude-next, --complement-next FILE  first sets minus following sets
  --compare                               pairwise comparison of all sets
  --compare-first                         compare every set against the first
  --compare-next FILE                     compare preceding sets against following sets
  --count-unique, -C                      entry/address counts of the union
  --count-unique-all                      entry/address counts per input set
  --ipset-reduce N, --reduce-factor N     reduce distinct CIDR prefixes used

Print flags:
  --print-ranges, -j        print as address ranges instead of CIDR
  --print-single-ips, -1    print every address individually
  --print-binary            print the binary v1.0 snapshot format
  --header                  print a CSV header line for report modes
  --output, -o FILE         write to FILE instead of stdout, holding an
                            advisory lock on it for the duration of the run

Hostname resolution:
  --resolver-workers N        bounded concurrency for batch hostname lookups
  --resolver-rate-limit F     cap lookups per second (0 disables the limiter)

See the accompanying documentation for the full flag list.
`, prog, prog)
	os.Exit(1)
}
