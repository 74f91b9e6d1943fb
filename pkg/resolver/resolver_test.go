package resolver

import (
	"context"
	"net"
	"testing"
)

func TestNetResolveFiltersToIPv4(t *testing.T) {
	r := &Net{
		LookupIP: func(ctx context.Context, network, host string) ([]net.IP, error) {
			return []net.IP{
				net.ParseIP("10.0.0.1"),
				net.ParseIP("::1"), // not IPv4, must be dropped
				net.ParseIP("10.0.0.2"),
			}, nil
		},
	}

	addrs, err := r.Resolve(context.Background(), "example.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []uint32{0x0a000001, 0x0a000002}
	if len(addrs) != len(want) {
		t.Fatalf("got %d addrs, want %d: %v", len(addrs), len(want), addrs)
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Errorf("addr %d = %#x, want %#x", i, addrs[i], want[i])
		}
	}
}

func TestNetResolveNoIPv4ResultsIsLookupError(t *testing.T) {
	r := &Net{
		LookupIP: func(ctx context.Context, network, host string) ([]net.IP, error) {
			return []net.IP{net.ParseIP("::1")}, nil
		},
	}

	if _, err := r.Resolve(context.Background(), "example.test"); err == nil {
		t.Fatalf("Resolve with no IPv4 results should fail")
	}
}

type stubResolver struct {
	calls int
	addrs []uint32
}

func (s *stubResolver) Resolve(ctx context.Context, hostname string) ([]uint32, error) {
	s.calls++
	return s.addrs, nil
}

func TestResolveAllPreservesOrderAndCallsEveryHost(t *testing.T) {
	stub := &stubResolver{addrs: []uint32{1, 2}}
	hosts := []string{"a.test", "b.test", "c.test"}

	results := ResolveAll(context.Background(), stub, hosts, ResolveAllConfig{Workers: 2})

	if stub.calls != len(hosts) {
		t.Fatalf("resolver called %d times, want %d", stub.calls, len(hosts))
	}
	if len(results) != len(hosts) {
		t.Fatalf("got %d results, want %d", len(results), len(hosts))
	}
	for i, h := range hosts {
		if results[i].Hostname != h {
			t.Errorf("result %d hostname = %q, want %q", i, results[i].Hostname, h)
		}
		if results[i].Err != nil {
			t.Errorf("result %d error = %v, want nil", i, results[i].Err)
		}
	}
}
