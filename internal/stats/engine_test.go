package stats

import (
	"strings"
	"testing"
	"time"
)

func TestComputeBitrateGuards(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 25000 bytes over 200ms = 1,000,000 bit/s.
	r := ComputeBitrate(1000, 26000, base, base.Add(200*time.Millisecond))
	if !r.OK {
		t.Fatal("expected rate to be available")
	}
	if r.BitsPerSec < 999999 || r.BitsPerSec > 1000001 {
		t.Fatalf("bitrate = %f, want 1000000", r.BitsPerSec)
	}

	// Below the minimum interval: unavailable, never a garbage spike.
	if r := ComputeBitrate(1000, 26000, base, base.Add(50*time.Millisecond)); r.OK {
		t.Fatalf("50ms interval must yield no rate, got %f", r.BitsPerSec)
	}

	// Negative elapsed time (clock anomaly): unavailable.
	if r := ComputeBitrate(1000, 26000, base, base.Add(-time.Second)); r.OK {
		t.Fatal("negative interval must yield no rate")
	}

	// Counter went backwards (stream restart): unavailable, not negative.
	if r := ComputeBitrate(26000, 1000, base, base.Add(time.Second)); r.OK {
		t.Fatal("backwards counter must yield no rate")
	}
}

func TestLossPercent(t *testing.T) {
	if p := LossPercent(0, 0); !p.OK || p.Value != 0 {
		t.Fatalf("zero lost must be 0%% even with zero received, got %+v", p)
	}
	if p := LossPercent(5, 0); p.OK {
		t.Fatal("lost packets with zero received must be unavailable")
	}
	p := LossPercent(5, 95)
	if !p.OK {
		t.Fatal("expected loss to be available")
	}
	if p.Value < 5.26 || p.Value > 5.27 {
		t.Fatalf("loss = %f, want ~5.26", p.Value)
	}
	// Negative lost counts (transport quirk) clamp to zero.
	if p := LossPercent(-3, 100); !p.OK || p.Value != 0 {
		t.Fatalf("negative lost must clamp to 0%%, got %+v", p)
	}
}

func snapshotAt(t time.Time, audioIn, audioOut uint64) Snapshot {
	return Snapshot{
		Timestamp: t,
		Audio: StreamStats{
			BytesReceived:   audioIn,
			BytesSent:       audioOut,
			PacketsReceived: 100,
			HasInbound:      true,
			HasOutbound:     true,
		},
	}
}

func TestEngineObserveDiffsConsecutiveSnapshots(t *testing.T) {
	e := NewEngine()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := e.Observe(snapshotAt(base, 1000, 2000))
	if first.AudioBitrateIn.OK {
		t.Fatal("first snapshot has no predecessor, rate must be unavailable")
	}

	second := e.Observe(snapshotAt(base.Add(time.Second), 3000, 6000))
	if !second.AudioBitrateIn.OK || second.AudioBitrateIn.BitsPerSec != 16000 {
		t.Fatalf("audio in = %+v, want 16000 bit/s", second.AudioBitrateIn)
	}
	if !second.AudioBitrateOut.OK || second.AudioBitrateOut.BitsPerSec != 32000 {
		t.Fatalf("audio out = %+v, want 32000 bit/s", second.AudioBitrateOut)
	}
}

func TestEngineRelayTransition(t *testing.T) {
	e := NewEngine()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	direct := Snapshot{
		Timestamp: base,
		Pair: &PairInfo{
			Local:  CandidateInfo{Type: CandidateTypeHost, Network: NetworkWifi},
			Remote: CandidateInfo{Type: CandidateTypeHost},
		},
	}
	relayed := Snapshot{
		Timestamp: base.Add(time.Second),
		Pair: &PairInfo{
			Local:  CandidateInfo{Type: CandidateTypeRelay, Network: NetworkWifi},
			Remote: CandidateInfo{Type: CandidateTypeHost},
		},
	}

	if obs := e.Observe(direct); obs.RelayChanged {
		t.Fatal("first observation must not report a relay change")
	}
	obs := e.Observe(relayed)
	if !obs.Relayed || !obs.RelayChanged {
		t.Fatalf("relay transition not detected: %+v", obs)
	}
	if obs := e.Observe(relayed); obs.RelayChanged {
		t.Fatal("steady relayed path must not keep reporting changes")
	}
}

func TestEngineReceivingVideo(t *testing.T) {
	e := NewEngine()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e.Observe(Snapshot{Timestamp: base, VideoFramesDecoded: 10, HasVideoFrames: true})
	if e.ReceivingVideo() {
		t.Fatal("single snapshot cannot prove frames are arriving")
	}

	e.Observe(Snapshot{Timestamp: base.Add(time.Second), VideoFramesDecoded: 35, HasVideoFrames: true})
	if !e.ReceivingVideo() {
		t.Fatal("advancing frame counter must report receiving video")
	}

	e.Observe(Snapshot{Timestamp: base.Add(2 * time.Second), VideoFramesDecoded: 35, HasVideoFrames: true})
	if e.ReceivingVideo() {
		t.Fatal("stalled frame counter must report no video")
	}
}

func TestReportsRenderUnavailableMetrics(t *testing.T) {
	if got := LongReport(nil, nil); got != "no stats collected\n" {
		t.Fatalf("nil long report = %q", got)
	}
	if got := ShortReport(nil, nil); got != "no stats" {
		t.Fatalf("nil short report = %q", got)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cur := snapshotAt(base, 1000, 2000)
	long := LongReport(&cur, nil)
	if !strings.Contains(long, "selected pair: none") {
		t.Fatalf("long report missing pair line:\n%s", long)
	}
	if !strings.Contains(long, "n/a") {
		t.Fatalf("rates without a predecessor must render as n/a:\n%s", long)
	}

	short := ShortReport(&cur, nil)
	if !strings.Contains(short, "no pair") || !strings.Contains(short, "a[n/a/n/a") {
		t.Fatalf("short report = %q", short)
	}
}
