package call

import (
	"net/netip"
	"strings"
)

// Minimum tokens in a parseable candidate line:
// candidate:<foundation> <component> <transport> <priority> <addr> <port> typ <type>
const minCandidateFields = 8

// ShouldForwardCandidate decides whether a gathered candidate is
// transmitted to the peer. seenRelay records related addresses of relay
// candidates already forwarded this session; it is mutated on forward and
// must be reset when the session returns to idle.
//
// Unparseable lines are forwarded: an unknown format is not a reason to
// silently drop signaling.
func ShouldForwardCandidate(line string, allowIPv6 bool, seenRelay map[netip.Addr]struct{}) bool {
	fields := strings.Fields(line)
	if len(fields) < minCandidateFields {
		return true
	}

	addr, err := netip.ParseAddr(fields[4])
	if err != nil {
		return true
	}
	if addr.IsLoopback() {
		return false
	}
	if addr.Is6() && !addr.Is4In6() && !allowIPv6 {
		return false
	}

	candType := tokenAfter(fields, "typ")
	if candType != "relay" {
		return true
	}

	raddr, err := netip.ParseAddr(tokenAfter(fields, "raddr"))
	if err != nil {
		// No usable related address; treat like the unspecified case.
		return true
	}
	if raddr.IsUnspecified() {
		// Always allow the any-address relay candidate.
		return true
	}
	if _, seen := seenRelay[raddr]; seen {
		// Duplicate relay path, suppress.
		return false
	}
	seenRelay[raddr] = struct{}{}
	return true
}

func tokenAfter(fields []string, key string) string {
	for i, f := range fields {
		if f == key && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
