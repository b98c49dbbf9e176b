package stats

import (
	"fmt"
	"strings"
)

// ShortReport renders a snapshot as a single abbreviated line, suitable
// for a live debug overlay.
func ShortReport(cur, prev *Snapshot) string {
	if cur == nil {
		return "no stats"
	}

	var b strings.Builder
	if cur.Pair != nil {
		fmt.Fprintf(&b, "%s/%s", cur.Pair.Local.Type, cur.Pair.Remote.Type)
		if cur.Relayed() {
			b.WriteString(" relay")
		}
		if cur.Cellular() {
			b.WriteString(" cell")
		}
		fmt.Fprintf(&b, " rtt=%dms", cur.Pair.RoundTripTime.Milliseconds())
	} else {
		b.WriteString("no pair")
	}

	fmt.Fprintf(&b, " a[%s/%s", rateString(prevRate(prev, cur, audioIn)), rateString(prevRate(prev, cur, audioOut)))
	if loss := LossPercent(cur.Audio.PacketsLost, cur.Audio.PacketsReceived); cur.Audio.HasInbound && loss.OK {
		fmt.Fprintf(&b, " %.1f%%", loss.Value)
	}
	b.WriteString("]")

	if cur.Video.HasInbound || cur.Video.HasOutbound {
		fmt.Fprintf(&b, " v[%s/%s]", rateString(prevRate(prev, cur, videoIn)), rateString(prevRate(prev, cur, videoOut)))
	}

	return b.String()
}

// LongReport renders a snapshot as a multi-line labeled report, suitable
// for persisted diagnostic logs.
func LongReport(cur, prev *Snapshot) string {
	if cur == nil {
		return "no stats collected\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "timestamp: %s\n", cur.Timestamp.Format("15:04:05.000"))

	if cur.Pair != nil {
		fmt.Fprintf(&b, "selected pair:\n")
		fmt.Fprintf(&b, "  local:  %s type=%s network=%s\n", cur.Pair.Local.Addr, cur.Pair.Local.Type, cur.Pair.Local.Network)
		fmt.Fprintf(&b, "  remote: %s type=%s\n", cur.Pair.Remote.Addr, cur.Pair.Remote.Type)
		fmt.Fprintf(&b, "  rtt: %dms relayed=%t cellular=%t\n", cur.Pair.RoundTripTime.Milliseconds(), cur.Relayed(), cur.Cellular())
	} else {
		b.WriteString("selected pair: none\n")
	}

	writeStream := func(name string, s StreamStats, in, out Rate) {
		fmt.Fprintf(&b, "%s:\n", name)
		if s.HasOutbound {
			fmt.Fprintf(&b, "  sent: %d bytes, %d packets, bitrate %s\n", s.BytesSent, s.PacketsSent, rateString(out))
		}
		if s.HasInbound {
			loss := LossPercent(s.PacketsLost, s.PacketsReceived)
			fmt.Fprintf(&b, "  received: %d bytes, %d packets, bitrate %s\n", s.BytesReceived, s.PacketsReceived, rateString(in))
			fmt.Fprintf(&b, "  lost: %d (%s), jitter %.1fms\n", s.PacketsLost, percentString(loss), s.JitterSec*1000)
		}
		if !s.HasInbound && !s.HasOutbound {
			b.WriteString("  no streams\n")
		}
	}

	writeStream("audio", cur.Audio, prevRate(prev, cur, audioIn), prevRate(prev, cur, audioOut))
	writeStream("video", cur.Video, prevRate(prev, cur, videoIn), prevRate(prev, cur, videoOut))

	if cur.AudioCodec != "" {
		fmt.Fprintf(&b, "audio codec: %s\n", cur.AudioCodec)
	}
	if cur.VideoCodec != "" {
		fmt.Fprintf(&b, "video codec: %s\n", cur.VideoCodec)
	}
	if cur.HasVideoFrames {
		fmt.Fprintf(&b, "video frames decoded: %d\n", cur.VideoFramesDecoded)
	}

	return b.String()
}

type rateSelector int

const (
	audioIn rateSelector = iota
	audioOut
	videoIn
	videoOut
)

func prevRate(prev, cur *Snapshot, sel rateSelector) Rate {
	if prev == nil || cur == nil {
		return Rate{}
	}
	var pb, cb uint64
	switch sel {
	case audioIn:
		pb, cb = prev.Audio.BytesReceived, cur.Audio.BytesReceived
	case audioOut:
		pb, cb = prev.Audio.BytesSent, cur.Audio.BytesSent
	case videoIn:
		pb, cb = prev.Video.BytesReceived, cur.Video.BytesReceived
	case videoOut:
		pb, cb = prev.Video.BytesSent, cur.Video.BytesSent
	}
	return ComputeBitrate(pb, cb, prev.Timestamp, cur.Timestamp)
}

func rateString(r Rate) string {
	if !r.OK {
		return "n/a"
	}
	switch {
	case r.BitsPerSec >= 1e6:
		return fmt.Sprintf("%.1fMbit/s", r.BitsPerSec/1e6)
	case r.BitsPerSec >= 1e3:
		return fmt.Sprintf("%.0fkbit/s", r.BitsPerSec/1e3)
	default:
		return fmt.Sprintf("%.0fbit/s", r.BitsPerSec)
	}
}

func percentString(p Percent) string {
	if !p.OK {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", p.Value)
}
