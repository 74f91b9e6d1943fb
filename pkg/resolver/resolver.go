// Package resolver turns a hostname token from an input line into one or
// more addresses, mirroring the getaddrinfo()/getnameinfo() round trip in
// the original iprange tool's LINE_HAS_1_HOSTNAME case. Where the
// original resolves synchronously, one hostname at a time, this package
// also offers a concurrent, rate-limited batch path (ResolveAll) and a
// LevelDB-backed lookup cache (Cached) for callers processing large
// hostname lists.
package resolver

import (
	"context"
	"net"

	"iprange/pkg/addrparse"
	"iprange/pkg/model"
)

// Resolver resolves a hostname to its IPv4 addresses.
type Resolver interface {
	Resolve(ctx context.Context, hostname string) ([]uint32, error)
}

// Net resolves hostnames via the standard resolver, filtering to IPv4
// results only, matching the original's AF_INET hint.
type Net struct {
	// LookupIP, when set, replaces net.DefaultResolver.LookupIP for
	// tests. Production callers leave this nil.
	LookupIP func(ctx context.Context, network, host string) ([]net.IP, error)
}

func (n *Net) lookup(ctx context.Context, hostname string) ([]net.IP, error) {
	if n.LookupIP != nil {
		return n.LookupIP(ctx, "ip4", hostname)
	}
	return net.DefaultResolver.LookupIP(ctx, "ip4", hostname)
}

// Resolve looks up hostname and returns every IPv4 address found, in the
// order the resolver returned them.
func (n *Net) Resolve(ctx context.Context, hostname string) ([]uint32, error) {
	ips, err := n.lookup(ctx, hostname)
	if err != nil {
		return nil, &LookupError{Hostname: hostname, Err: err}
	}

	out := make([]uint32, 0, len(ips))
	for _, ip := range ips {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		addr, err := addrparse.ToAddr(v4.String())
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, &LookupError{Hostname: hostname, Err: model.ErrLookup}
	}
	return out, nil
}

// LookupError reports a failed hostname resolution without discarding
// the hostname that failed, matching the original's per-line diagnostic
// ("Cannot find the IP of hostname '%s' ...").
type LookupError struct {
	Hostname string
	Err      error
}

func (e *LookupError) Error() string {
	return "resolve " + e.Hostname + ": " + e.Err.Error()
}

func (e *LookupError) Unwrap() error { return e.Err }
