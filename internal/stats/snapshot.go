package stats

import "time"

// Candidate types as they appear in ICE candidate lines.
const (
	CandidateTypeHost  = "host"
	CandidateTypeSrflx = "srflx"
	CandidateTypePrflx = "prflx"
	CandidateTypeRelay = "relay"
)

// Network classifications for the local candidate's interface.
const (
	NetworkWifi     = "wifi"
	NetworkCellular = "cellular"
	NetworkWired    = "wired"
	NetworkUnknown  = "unknown"
)

// CandidateInfo describes one side of the selected candidate pair.
type CandidateInfo struct {
	Addr    string
	Type    string // host, srflx, prflx, relay
	Network string // set for the local candidate only
}

// PairInfo describes the selected candidate pair at snapshot time.
type PairInfo struct {
	Local         CandidateInfo
	Remote        CandidateInfo
	RoundTripTime time.Duration
}

// StreamStats holds per-direction counters for one media kind.
// HasInbound/HasOutbound record whether the transport reported the
// corresponding stream at all; derived metrics are unavailable otherwise.
type StreamStats struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint32
	PacketsReceived uint32
	PacketsLost     int32
	JitterSec       float64
	HasInbound      bool
	HasOutbound     bool
}

// Snapshot is an immutable record of the transport's statistics at one
// polling instant. Rate metrics are computed by diffing two snapshots.
type Snapshot struct {
	Timestamp time.Time

	Pair *PairInfo // nil until a pair is selected

	Audio StreamStats
	Video StreamStats

	AudioCodec string
	VideoCodec string

	VideoFramesDecoded uint32
	HasVideoFrames     bool
}

// Relayed reports whether either side of the selected pair is a relay
// candidate.
func (s *Snapshot) Relayed() bool {
	if s.Pair == nil {
		return false
	}
	return s.Pair.Local.Type == CandidateTypeRelay || s.Pair.Remote.Type == CandidateTypeRelay
}

// Cellular reports whether the selected pair's local candidate sits on a
// cellular interface.
func (s *Snapshot) Cellular() bool {
	return s.Pair != nil && s.Pair.Local.Network == NetworkCellular
}
