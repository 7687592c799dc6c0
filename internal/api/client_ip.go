package api

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

const unknownClientIP = "unknown"

// ClientIPResolver decides which address a request is attributed to: the
// key of every per-IP rate limit, the ip_address stored with password reset
// attempts and the client_ip of request logs.
//
// Forwarding headers are only read when the direct peer is a trusted proxy.
// X-Forwarded-For is walked from the right and trusted hops are skipped, so a
// client that prepends its own entries cannot pick the address it is limited
// under.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver accepts single addresses and CIDR ranges.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}

	for _, raw := range trustedProxies {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}

		if !strings.Contains(value, "/") {
			addr, err := netip.ParseAddr(value)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
			}
			addr = addr.Unmap()
			resolver.trusted = append(resolver.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}

		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", value, err)
		}
		resolver.trusted = append(resolver.trusted, prefix.Masked())
	}

	return resolver, nil
}

func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer, ok := parseAddr(req.RemoteAddr)
	if !ok {
		return unknownClientIP
	}
	if !r.trusts(peer) {
		return peer.String()
	}

	if addr, ok := r.forwardedClient(req.Header.Values("X-Forwarded-For")); ok {
		return addr.String()
	}
	if addr, ok := parseAddr(req.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}

	return peer.String()
}

func (r *ClientIPResolver) trusts(addr netip.Addr) bool {
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedClient returns the rightmost untrusted hop. When every hop is a
// trusted proxy the leftmost one is the best answer left. A malformed hop
// ends the walk since nothing to its left can be vouched for.
func (r *ClientIPResolver) forwardedClient(headers []string) (netip.Addr, bool) {
	var hops []string
	for _, header := range headers {
		hops = append(hops, strings.Split(header, ",")...)
	}

	var (
		last  netip.Addr
		found bool
	)
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseAddr(hops[i])
		if !ok {
			break
		}
		if !r.trusts(addr) {
			return addr, true
		}
		last, found = addr, true
	}

	return last, found
}

// parseAddr reads a bare address, an addr:port pair or a quoted form of
// either. IPv4-mapped IPv6 addresses are reduced to IPv4 so one client never
// counts under two keys.
func parseAddr(value string) (netip.Addr, bool) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return netip.Addr{}, false
	}

	if addr, err := netip.ParseAddr(value); err == nil {
		return addr.Unmap(), true
	}
	if addrPort, err := netip.ParseAddrPort(value); err == nil {
		return addrPort.Addr().Unmap(), true
	}

	return netip.Addr{}, false
}
