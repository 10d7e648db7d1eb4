// Package privacy masks client identities before they reach logs, metrics labels or
// security events.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
)

// AnonymizeIP truncates an address to its network: /24 for IPv4 (and IPv4-mapped
// IPv6), /48 for IPv6. Returns "unknown" for empty input or the identity sentinel,
// "invalid" for anything unparseable.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// HashIdentity returns a short stable digest of a session subject for
// correlating events without storing the subject itself.
func HashIdentity(subject string) string {
	if subject == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:8])
}
