package field

import (
	"net/netip"
	"strings"
)

// IP is an address with an optional prefix length, as written in inventory
// sheets ("10.0.0.1" or "10.0.0.1/24").
type IP struct {
	Addr netip.Addr
	Bits int // -1 when no prefix length was given
}

// ParseIP parses an address with an optional "/len" suffix.
func ParseIP(s string) (IP, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return IP{}, err
		}
		return IP{Addr: p.Addr(), Bits: p.Bits()}, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return IP{}, err
	}
	return IP{Addr: a, Bits: -1}, nil
}

// Prefix returns the network the address belongs to.
func (ip IP) Prefix() netip.Prefix {
	bits := ip.Bits
	if bits < 0 {
		bits = ip.Addr.BitLen()
	}
	p, _ := ip.Addr.Prefix(bits)
	return p
}

func (ip IP) String() string {
	if ip.Bits < 0 {
		return ip.Addr.String()
	}
	return netip.PrefixFrom(ip.Addr, ip.Bits).String()
}

// Compare orders by address, then prefix length.
func (ip IP) Compare(o IP) int {
	if c := ip.Addr.Compare(o.Addr); c != 0 {
		return c
	}
	switch {
	case ip.Bits < o.Bits:
		return -1
	case ip.Bits > o.Bits:
		return 1
	}
	return 0
}
