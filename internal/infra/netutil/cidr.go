package netutil

import "net"

// ParseCIDRs parses the admin allow-list. Malformed entries are skipped so a
// typo narrows access instead of opening it.
func ParseCIDRs(cidrs []string) []*net.IPNet {
	var out []*net.IPNet
	for _, s := range cidrs {
		if _, n, err := net.ParseCIDR(s); err == nil && n != nil {
			out = append(out, n)
		}
	}
	return out
}
