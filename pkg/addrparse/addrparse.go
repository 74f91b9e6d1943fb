// Package addrparse converts a single IP textual token — a dotted-quad,
// optionally suffixed with /prefix or /dotted-netmask — into a closed
// [network, broadcast] interval. It mirrors str_to_netaddr()/a_to_hl()
// from the original iprange tool, phrased over net/netip for the text
// <-> uint32 boundary instead of inet_aton/inet_ntoa.
package addrparse

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"iprange/pkg/ipnum"
	"iprange/pkg/model"
)

// Options configures how a token is interpreted.
type Options struct {
	// DefaultPrefix is used when the token carries no "/...".
	DefaultPrefix int
	// FixNetwork, when true (the default), normalizes the address to
	// its network address under the parsed prefix before deriving the
	// broadcast. When false, the broadcast is still derived from the
	// literal address, producing a "half subnet" whenever the address
	// isn't already network-aligned.
	FixNetwork bool
}

// DefaultOptions matches the original tool's defaults: /32 when no mask
// is given, and network-fixing enabled.
func DefaultOptions() Options {
	return Options{DefaultPrefix: ipnum.MaxPrefix, FixNetwork: true}
}

// ToAddr parses a single dotted-quad (no mask) into a host-order uint32.
func ToAddr(s string) (uint32, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidAddress, s)
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// FormatAddr renders a host-order uint32 back to dotted-quad form.
func FormatAddr(a uint32) string {
	return netip.AddrFrom4([4]byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)}).String()
}

// Parse converts one IP token into its closed interval.
func Parse(token string, opt Options) (model.Interval, error) {
	token = strings.TrimSpace(token)

	left, right, hasMask := strings.Cut(token, "/")

	addr, err := ToAddr(left)
	if err != nil {
		return model.Interval{}, err
	}

	prefix := opt.DefaultPrefix
	if hasMask {
		prefix, err = parsePrefixOrMask(right)
		if err != nil {
			return model.Interval{}, err
		}
	}

	var net uint32
	if opt.FixNetwork {
		net, err = ipnum.Network(addr, prefix)
	} else {
		net = addr
		_, err = ipnum.Netmask(prefix) // validates prefix range
	}
	if err != nil {
		return model.Interval{}, err
	}

	bcast, err := ipnum.Broadcast(net, prefix)
	if err != nil {
		return model.Interval{}, err
	}

	return model.Interval{Addr: net, Broadcast: bcast}, nil
}

// parsePrefixOrMask accepts either a decimal prefix length in [0,32] or a
// dotted-quad netmask, inverting the mask and rejecting non-contiguous
// bit patterns.
func parsePrefixOrMask(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= ipnum.MaxPrefix {
		return n, nil
	}

	maskAddr, err := ToAddr(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidMask, s)
	}

	inverted := ^maskAddr
	prefix := ipnum.MaxPrefix
	for inverted&1 == 1 {
		inverted >>= 1
		prefix--
	}
	if inverted != 0 {
		return 0, fmt.Errorf("%w: %q is not a contiguous netmask", model.ErrInvalidMask, s)
	}
	return prefix, nil
}
