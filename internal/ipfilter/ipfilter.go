package ipfilter

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// AllowList is a set of caller addresses and networks. A nil *AllowList
// places no restriction; an empty non-nil one admits nobody.
type AllowList struct {
	nets    []*net.IPNet
	entries []string
}

// New builds an allow list from IP addresses and CIDR blocks.
func New(entries []string) (*AllowList, error) {
	a := &AllowList{
		nets:    make([]*net.IPNet, 0, len(entries)),
		entries: make([]string, 0, len(entries)),
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		ipNet, err := parse(entry)
		if err != nil {
			return nil, err
		}
		a.nets = append(a.nets, ipNet)
		a.entries = append(a.entries, entry)
	}
	return a, nil
}

func parse(entry string) (*net.IPNet, error) {
	_, ipNet, err := net.ParseCIDR(entry)
	if err == nil {
		return ipNet, nil
	}
	// Try as single IP
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q: not an IP or CIDR", entry)
	}
	if ip4 := ip.To4(); ip4 != nil {
		return &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}, nil
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
}

// Allows reports whether addr is a member of the list. An IPv6 zone
// ("fe80::1%eth0") is ignored.
func (a *AllowList) Allows(addr string) bool {
	if a == nil {
		return true
	}
	if i := strings.IndexByte(addr, '%'); i >= 0 {
		addr = addr[:i]
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range a.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Entries returns the configured entries in declaration order.
func (a *AllowList) Entries() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.entries))
	copy(out, a.entries)
	return out
}

// RemoteHost returns the host part of r.RemoteAddr. Forwarding headers are
// ignored: the allow list applies to the directly connected peer.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
