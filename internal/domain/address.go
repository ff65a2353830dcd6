package domain

import (
	"fmt"
	"net/netip"
)

// IsValidIPv4 reports whether s is a dotted-quad IPv4 address.
func IsValidIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

// IsValidIPv6 reports whether s is an IPv6 address without zone.
func IsValidIPv6(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is6() && addr.Zone() == ""
}

// CheckIPv4 returns ErrWrongFamily for a well-formed non-IPv4 address and
// ErrInvalidAddress for anything that is not an address at all.
func CheckIPv4(s string) error {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if !addr.Is4() {
		return fmt.Errorf("%w: %q", ErrWrongFamily, s)
	}
	return nil
}
