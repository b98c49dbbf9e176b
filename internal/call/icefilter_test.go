package call

import (
	"net/netip"
	"testing"
)

func TestShouldForwardCandidateRules(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		allowIPv6 bool
		want      bool
	}{
		{
			name: "host candidate forwarded",
			line: "candidate:1 1 udp 2122260223 192.168.1.10 54321 typ host",
			want: true,
		},
		{
			name: "loopback dropped",
			line: "candidate:2 1 udp 2122260223 127.0.0.1 54321 typ host",
			want: false,
		},
		{
			name:      "ipv6 loopback dropped even when ipv6 allowed",
			line:      "candidate:2 1 udp 2122260223 ::1 54321 typ host",
			allowIPv6: true,
			want:      false,
		},
		{
			name: "ipv6 dropped when disabled",
			line: "candidate:3 1 udp 2122260223 2001:db8::1 54321 typ host",
			want: false,
		},
		{
			name:      "ipv6 forwarded when enabled",
			line:      "candidate:3 1 udp 2122260223 2001:db8::1 54321 typ host",
			allowIPv6: true,
			want:      true,
		},
		{
			name: "srflx forwarded",
			line: "candidate:4 1 udp 1686052607 203.0.113.5 54321 typ srflx raddr 192.168.1.10 rport 54321",
			want: true,
		},
		{
			name: "relay with unspecified raddr forwarded",
			line: "candidate:5 1 udp 41885439 198.51.100.2 3478 typ relay raddr 0.0.0.0 rport 0",
			want: true,
		},
		{
			name: "short line forwarded unchanged",
			line: "candidate:6 1 udp",
			want: true,
		},
		{
			name: "unparseable address forwarded",
			line: "candidate:7 1 udp 2122260223 not-an-address 54321 typ host",
			want: true,
		},
		{
			name: "empty line forwarded",
			line: "",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[netip.Addr]struct{})
			got := ShouldForwardCandidate(tt.line, tt.allowIPv6, seen)
			if got != tt.want {
				t.Fatalf("ShouldForwardCandidate(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestShouldForwardCandidateRelayDeduplication(t *testing.T) {
	seen := make(map[netip.Addr]struct{})

	first := "candidate:1 1 udp 41885439 198.51.100.2 3478 typ relay raddr 203.0.113.5 rport 50000"
	if !ShouldForwardCandidate(first, false, seen) {
		t.Fatal("first relay candidate for a related address must be forwarded")
	}

	// Different relay server, same related address: duplicate path.
	dup := "candidate:2 1 udp 41885438 198.51.100.3 3478 typ relay raddr 203.0.113.5 rport 50001"
	if ShouldForwardCandidate(dup, false, seen) {
		t.Fatal("second relay candidate for the same related address must be suppressed")
	}

	// New related address passes.
	other := "candidate:3 1 udp 41885437 198.51.100.4 3478 typ relay raddr 203.0.113.6 rport 50000"
	if !ShouldForwardCandidate(other, false, seen) {
		t.Fatal("relay candidate for a new related address must be forwarded")
	}

	// A fresh session (fresh seen-set) forwards the original again.
	fresh := make(map[netip.Addr]struct{})
	if !ShouldForwardCandidate(dup, false, fresh) {
		t.Fatal("seen-set must not leak across sessions")
	}
}

func TestShouldForwardCandidateRelayWithoutRaddr(t *testing.T) {
	seen := make(map[netip.Addr]struct{})
	line := "candidate:1 1 udp 41885439 198.51.100.2 3478 typ relay"
	if !ShouldForwardCandidate(line, false, seen) {
		t.Fatal("relay candidate without a related address must be forwarded")
	}
	if len(seen) != 0 {
		t.Fatal("missing related address must not populate the seen-set")
	}
}
