package stats

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

// Classifier maps a local candidate address to a network classification
// (wifi, cellular, wired, unknown). The host environment supplies it; the
// stats engine treats the result as opaque.
type Classifier func(addr string) string

// FromReport flattens a pion stats report into a Snapshot. classify may be
// nil, in which case local networks are reported as unknown.
func FromReport(report webrtc.StatsReport, classify Classifier) Snapshot {
	snap := Snapshot{Timestamp: time.Now()}

	candidates := make(map[string]webrtc.ICECandidateStats)
	var selected *webrtc.ICECandidatePairStats

	for _, s := range report {
		switch stat := s.(type) {
		case webrtc.ICECandidateStats:
			candidates[stat.ID] = stat

		case webrtc.ICECandidatePairStats:
			if stat.State != webrtc.StatsICECandidatePairStateSucceeded {
				continue
			}
			if selected == nil || stat.Nominated {
				pair := stat
				selected = &pair
			}

		case webrtc.InboundRTPStreamStats:
			switch stat.Kind {
			case "audio":
				snap.Audio.HasInbound = true
				snap.Audio.BytesReceived = stat.BytesReceived
				snap.Audio.PacketsReceived = stat.PacketsReceived
				snap.Audio.PacketsLost = stat.PacketsLost
				snap.Audio.JitterSec = stat.Jitter
			case "video":
				snap.Video.HasInbound = true
				snap.Video.BytesReceived = stat.BytesReceived
				snap.Video.PacketsReceived = stat.PacketsReceived
				snap.Video.PacketsLost = stat.PacketsLost
				snap.Video.JitterSec = stat.Jitter
				snap.VideoFramesDecoded = stat.FramesDecoded
				snap.HasVideoFrames = true
			}

		case webrtc.OutboundRTPStreamStats:
			switch stat.Kind {
			case "audio":
				snap.Audio.HasOutbound = true
				snap.Audio.BytesSent = stat.BytesSent
				snap.Audio.PacketsSent = stat.PacketsSent
			case "video":
				snap.Video.HasOutbound = true
				snap.Video.BytesSent = stat.BytesSent
				snap.Video.PacketsSent = stat.PacketsSent
			}

		case webrtc.CodecStats:
			switch {
			case snap.AudioCodec == "" && isAudioMime(stat.MimeType):
				snap.AudioCodec = stat.MimeType
			case snap.VideoCodec == "" && isVideoMime(stat.MimeType):
				snap.VideoCodec = stat.MimeType
			}
		}
	}

	if selected != nil {
		pair := &PairInfo{
			RoundTripTime: time.Duration(selected.CurrentRoundTripTime * float64(time.Second)),
		}
		if local, ok := candidates[selected.LocalCandidateID]; ok {
			pair.Local = candidateInfo(local)
			if classify != nil {
				pair.Local.Network = classify(pair.Local.Addr)
			} else {
				pair.Local.Network = NetworkUnknown
			}
		}
		if remote, ok := candidates[selected.RemoteCandidateID]; ok {
			pair.Remote = candidateInfo(remote)
		}
		snap.Pair = pair
	}

	return snap
}

func candidateInfo(c webrtc.ICECandidateStats) CandidateInfo {
	return CandidateInfo{
		Addr: fmt.Sprintf("%s:%d", c.IP, c.Port),
		Type: c.CandidateType.String(),
	}
}

func isAudioMime(mime string) bool {
	return len(mime) > 6 && mime[:6] == "audio/"
}

func isVideoMime(mime string) bool {
	return len(mime) > 6 && mime[:6] == "video/"
}
