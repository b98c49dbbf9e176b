package stats

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func testReport() webrtc.StatsReport {
	return webrtc.StatsReport{
		"pair-1": webrtc.ICECandidatePairStats{
			State:                webrtc.StatsICECandidatePairStateSucceeded,
			Nominated:            true,
			LocalCandidateID:     "local-1",
			RemoteCandidateID:    "remote-1",
			CurrentRoundTripTime: 0.042,
		},
		"pair-2": webrtc.ICECandidatePairStats{
			State:             webrtc.StatsICECandidatePairStateFailed,
			LocalCandidateID:  "local-1",
			RemoteCandidateID: "remote-1",
		},
		"local-1": webrtc.ICECandidateStats{
			ID:            "local-1",
			IP:            "192.168.1.10",
			Port:          54321,
			CandidateType: webrtc.ICECandidateTypeHost,
		},
		"remote-1": webrtc.ICECandidateStats{
			ID:            "remote-1",
			IP:            "203.0.113.5",
			Port:          3478,
			CandidateType: webrtc.ICECandidateTypeRelay,
		},
		"inbound-audio": webrtc.InboundRTPStreamStats{
			Kind:            "audio",
			BytesReceived:   48000,
			PacketsReceived: 500,
			PacketsLost:     3,
			Jitter:          0.004,
		},
		"outbound-audio": webrtc.OutboundRTPStreamStats{
			Kind:        "audio",
			BytesSent:   52000,
			PacketsSent: 520,
		},
		"inbound-video": webrtc.InboundRTPStreamStats{
			Kind:          "video",
			BytesReceived: 900000,
			FramesDecoded: 250,
		},
		"codec-audio": webrtc.CodecStats{MimeType: "audio/opus"},
		"codec-video": webrtc.CodecStats{MimeType: "video/VP8"},
	}
}

func TestFromReportSelectsNominatedPair(t *testing.T) {
	snap := FromReport(testReport(), func(addr string) string {
		if addr == "192.168.1.10:54321" {
			return NetworkCellular
		}
		return NetworkUnknown
	})

	if snap.Pair == nil {
		t.Fatal("expected a selected pair")
	}
	if snap.Pair.Local.Addr != "192.168.1.10:54321" || snap.Pair.Local.Type != CandidateTypeHost {
		t.Fatalf("unexpected local candidate: %+v", snap.Pair.Local)
	}
	if snap.Pair.Remote.Type != CandidateTypeRelay {
		t.Fatalf("unexpected remote candidate: %+v", snap.Pair.Remote)
	}
	if snap.Pair.RoundTripTime.Milliseconds() != 42 {
		t.Fatalf("rtt = %v, want 42ms", snap.Pair.RoundTripTime)
	}

	if !snap.Relayed() {
		t.Fatal("remote relay candidate must mark the path relayed")
	}
	if !snap.Cellular() {
		t.Fatal("classifier result must flow into the snapshot")
	}
}

func TestFromReportFlattensStreams(t *testing.T) {
	snap := FromReport(testReport(), nil)

	if !snap.Audio.HasInbound || snap.Audio.BytesReceived != 48000 || snap.Audio.PacketsLost != 3 {
		t.Fatalf("unexpected audio inbound: %+v", snap.Audio)
	}
	if !snap.Audio.HasOutbound || snap.Audio.BytesSent != 52000 {
		t.Fatalf("unexpected audio outbound: %+v", snap.Audio)
	}
	if !snap.Video.HasInbound || !snap.HasVideoFrames || snap.VideoFramesDecoded != 250 {
		t.Fatalf("unexpected video inbound: %+v", snap.Video)
	}
	if snap.Video.HasOutbound {
		t.Fatal("no outbound video was reported")
	}
	if snap.AudioCodec != "audio/opus" || snap.VideoCodec != "video/VP8" {
		t.Fatalf("codecs = %q / %q", snap.AudioCodec, snap.VideoCodec)
	}
	if snap.Pair.Local.Network != NetworkUnknown {
		t.Fatalf("nil classifier must yield unknown network, got %q", snap.Pair.Local.Network)
	}
}
