package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"iprange/pkg/addrparse"
	"iprange/pkg/ipset"
	"iprange/pkg/lineparse"
	"iprange/pkg/model"
	"iprange/pkg/resolver"
	"iprange/pkg/snapshot"
)

// LoadOptions configures how a single input source is turned into a Set,
// mirroring the handful of knobs ipset_load() reads from command line
// globals in the original tool (default_prefix, cidr_use_network) plus
// the optional resolver this codebase adds for hostname lines and the
// bounded-concurrency settings that resolver batch uses.
type LoadOptions struct {
	AddrOptions addrparse.Options
	Resolver    resolver.Resolver
	ResolveAll  resolver.ResolveAllConfig
	Debug       bool
}

// hostnameJob remembers which input line a hostname came from, so a
// failed lookup can be reported against that line even though the
// lookups themselves run concurrently in ResolveAll.
type hostnameJob struct {
	lineNo   int
	hostname string
}

// Load reads one input source into a new Set named name, whose Optimized
// flag is kept only as far as the records arrive in order.
// It sniffs the first line to tell a binary v1.0 snapshot from a text
// file, exactly as ipset_load() does. For a text file it classifies
// every line with lineparse, applies address and range records
// directly, and batches every hostname line into a single
// resolver.ResolveAll call so a source with many hostname lines is
// resolved with bounded concurrency instead of one DNS round trip at a
// time.
func Load(ctx context.Context, r io.Reader, name string, opt LoadOptions) (*ipset.Set, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	first, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading %s: %v", model.ErrIO, name, err)
	}

	s := ipset.New(name)
	if first == "" {
		return s, nil
	}

	if snapshot.LooksLikeHeader(first) {
		ivs, meta, err := snapshot.Read(br, true)
		if err != nil {
			return nil, fmt.Errorf("%w: loading binary snapshot %s: %v", model.ErrFormat, name, err)
		}
		for _, iv := range ivs {
			s.Append(iv)
		}
		s.Lines = meta.Lines
		s.UniqueIPs = meta.UniqueIPs
		s.Optimized = meta.Optimized
		if opt.Debug {
			log.Printf("DEBUG: binary loaded %s (%s)", name, optimizedWord(meta.Optimized))
		}
		return s, nil
	}

	var lines []string
	for line, readErr := first, error(nil); ; {
		lines = append(lines, line)
		line, readErr = br.ReadString('\n')
		if readErr != nil {
			if line != "" {
				lines = append(lines, line)
			}
			break
		}
	}

	var hosts []hostnameJob
	for i, ln := range lines {
		lineNo := i + 1
		res := lineparse.Classify(ln)
		for _, w := range res.Warnings {
			log.Printf("WARN: %s: line %d: %s", name, lineNo, w)
		}

		if res.Kind == lineparse.Hostname {
			hosts = append(hosts, hostnameJob{lineNo: lineNo, hostname: res.Token1})
			continue
		}
		if err := appendRecord(s, res, opt.AddrOptions); err != nil {
			log.Printf("WARN: %s: line %d: %v", name, lineNo, err)
		}
	}

	applyHostnames(ctx, s, name, hosts, opt)

	if opt.Debug {
		log.Printf("DEBUG: loaded %s (%s)", name, optimizedWord(s.Optimized))
	}
	return s, nil
}

func optimizedWord(optimized bool) string {
	if optimized {
		return "optimized"
	}
	return "non-optimized"
}

// appendRecord applies a classified non-hostname line to s.
func appendRecord(s *ipset.Set, res lineparse.Result, addrOpt addrparse.Options) error {
	switch res.Kind {
	case lineparse.Empty:
		return nil

	case lineparse.OneIP:
		iv, err := addrparse.Parse(res.Token1, addrOpt)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", model.ErrParse, res.Token1, err)
		}
		s.Append(iv)
		return nil

	case lineparse.TwoIPs:
		iv1, err := addrparse.Parse(res.Token1, addrOpt)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", model.ErrParse, res.Token1, err)
		}
		iv2, err := addrparse.Parse(res.Token2, addrOpt)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", model.ErrParse, res.Token2, err)
		}
		lo, hi := iv1.Addr, iv1.Broadcast
		if iv2.Addr < lo {
			lo = iv2.Addr
		}
		if iv2.Broadcast > hi {
			hi = iv2.Broadcast
		}
		s.AppendRange(lo, hi)
		return nil

	default:
		return fmt.Errorf("%w: unrecognized line", model.ErrParse)
	}
}

// applyHostnames resolves every hostname line collected from the file
// in a single bounded-concurrency batch, then appends the results onto s
// after the file's address records, in the order the hostname lines
// appear in the file.
func applyHostnames(ctx context.Context, s *ipset.Set, name string, hosts []hostnameJob, opt LoadOptions) {
	if len(hosts) == 0 {
		return
	}
	if opt.Resolver == nil {
		for _, h := range hosts {
			log.Printf("WARN: %s: line %d: %v: hostname %q given but no resolver is configured", name, h.lineNo, model.ErrLookup, h.hostname)
		}
		return
	}

	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.hostname
	}

	for i, res := range resolver.ResolveAll(ctx, opt.Resolver, names, opt.ResolveAll) {
		if res.Err != nil {
			log.Printf("WARN: %s: line %d: %v", name, hosts[i].lineNo, res.Err)
			continue
		}
		for _, a := range res.Addrs {
			s.Append(model.Interval{Addr: a, Broadcast: a})
		}
	}
}

// LoadFile opens path (or stdin when path is "" or "-") and loads it
// with Load, matching ipset_load()'s filename-or-stdin convention.
func LoadFile(ctx context.Context, path string, opt LoadOptions) (*ipset.Set, error) {
	name := path
	if path == "" || path == "-" {
		return Load(ctx, os.Stdin, "stdin", opt)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrIO, path, err)
	}
	defer f.Close()

	return Load(ctx, f, name, opt)
}
