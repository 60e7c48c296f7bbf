// Package netx holds the network-origin helpers behind campus mode: client
// IP extraction from proxied requests and CIDR range membership.
package netx

import (
	"net/http"
	"net/netip"
	"strings"
)

// Loopback is the address assumed when no forwarding header is present.
// Only a local dev setup hits this; production deployments sit behind an
// edge that always stamps the trusted header.
const Loopback = "127.0.0.1"

// ClientIP extracts the client address from a proxied request. The trusted
// header (set by the edge platform, never writable by clients) wins; the
// first hop of X-Forwarded-For is a fallback, and loopback the default.
func ClientIP(r *http.Request, trustedHeader string) string {
	if trustedHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(trustedHeader)); v != "" {
			return v
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	return Loopback
}

// ParseRanges splits a comma-separated CIDR list into prefixes. Malformed
// entries are dropped so one bad range never disables the others; a bare
// address is accepted as a single-host range.
func ParseRanges(list string) []netip.Prefix {
	var out []netip.Prefix
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(part); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

// AnyRangeContains reports whether addr falls inside at least one range.
// A malformed address matches nothing. Family mismatches (v4 range against a
// v6 address and vice versa) never match; a /0 range matches every address
// of its own family.
func AnyRangeContains(addr string, ranges []netip.Prefix) bool {
	a, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	// Normalise v4-mapped v6 forms so "::ffff:10.0.0.1" matches v4 ranges.
	a = a.Unmap()

	for _, p := range ranges {
		if p.Addr().Is4() != a.Is4() {
			continue
		}
		if p.Contains(a) {
			return true
		}
	}
	return false
}
