package stats

import (
	"sync"
	"time"
)

// Bitrate is only computed when at least this much time separates two
// snapshots; shorter (or negative) intervals yield garbage rates.
const minBitrateInterval = 100 * time.Millisecond

// Rate is a bits-per-second figure that may be unavailable.
type Rate struct {
	BitsPerSec float64
	OK         bool
}

// Percent is a percentage figure that may be unavailable.
type Percent struct {
	Value float64
	OK    bool
}

// ComputeBitrate derives bits/sec from two byte counters and their
// timestamps. It returns OK=false when the elapsed time is below the
// minimum interval or negative (clock anomaly), or when the counter
// went backwards (stream restart).
func ComputeBitrate(prevBytes, curBytes uint64, prevTime, curTime time.Time) Rate {
	elapsed := curTime.Sub(prevTime)
	if elapsed < minBitrateInterval {
		return Rate{}
	}
	if curBytes < prevBytes {
		return Rate{}
	}
	bits := float64(curBytes-prevBytes) * 8
	return Rate{BitsPerSec: bits / elapsed.Seconds(), OK: true}
}

// LossPercent derives a packet-loss percentage. lost == 0 yields 0%;
// a zero total with non-zero loss is unavailable.
func LossPercent(lost int32, total uint32) Percent {
	if lost <= 0 {
		return Percent{Value: 0, OK: true}
	}
	if total == 0 {
		return Percent{}
	}
	return Percent{Value: float64(lost) / float64(total) * 100, OK: true}
}

// Observation is what one snapshot, diffed against its predecessor,
// tells the call session.
type Observation struct {
	AudioBitrateIn  Rate
	AudioBitrateOut Rate
	VideoBitrateIn  Rate
	VideoBitrateOut Rate

	AudioLoss Percent
	VideoLoss Percent

	ReceivingVideo bool
	Cellular       bool
	Relayed        bool

	// RelayChanged is true when the relay answer differs from the
	// previous observation (drives video-quality profile switches).
	RelayChanged bool
}

// Engine keeps the previous snapshot for one call and answers the session's
// diagnostic questions. It only transforms data; polling cadence belongs to
// the caller.
type Engine struct {
	mu       sync.Mutex
	prev     *Snapshot
	cur      *Snapshot
	relayed  bool
	hasRelay bool
}

// NewEngine returns an engine with no history.
func NewEngine() *Engine {
	return &Engine{}
}

// Observe records a snapshot and returns the derived metrics.
func (e *Engine) Observe(s Snapshot) Observation {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prev = e.cur
	e.cur = &s

	obs := Observation{
		Cellular: s.Cellular(),
		Relayed:  s.Relayed(),
	}
	if e.prev != nil {
		obs.AudioBitrateIn = ComputeBitrate(e.prev.Audio.BytesReceived, s.Audio.BytesReceived, e.prev.Timestamp, s.Timestamp)
		obs.AudioBitrateOut = ComputeBitrate(e.prev.Audio.BytesSent, s.Audio.BytesSent, e.prev.Timestamp, s.Timestamp)
		obs.VideoBitrateIn = ComputeBitrate(e.prev.Video.BytesReceived, s.Video.BytesReceived, e.prev.Timestamp, s.Timestamp)
		obs.VideoBitrateOut = ComputeBitrate(e.prev.Video.BytesSent, s.Video.BytesSent, e.prev.Timestamp, s.Timestamp)
		obs.ReceivingVideo = receivingVideo(e.prev, &s)
	}
	if s.Audio.HasInbound {
		obs.AudioLoss = LossPercent(s.Audio.PacketsLost, s.Audio.PacketsReceived)
	}
	if s.Video.HasInbound {
		obs.VideoLoss = LossPercent(s.Video.PacketsLost, s.Video.PacketsReceived)
	}

	obs.RelayChanged = e.hasRelay && e.relayed != obs.Relayed
	e.relayed = obs.Relayed
	e.hasRelay = true

	return obs
}

// ReceivingVideo answers whether the frame counter advanced between the
// two most recent snapshots.
func (e *Engine) ReceivingVideo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return receivingVideo(e.prev, e.cur)
}

// Cellular answers whether the current transport path is cellular.
func (e *Engine) Cellular() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil && e.cur.Cellular()
}

// Relayed answers whether the current transport path goes through a relay.
func (e *Engine) Relayed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil && e.cur.Relayed()
}

// Current returns the latest snapshot and its predecessor, or nils.
func (e *Engine) Current() (cur, prev *Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur, e.prev
}

func receivingVideo(prev, cur *Snapshot) bool {
	if prev == nil || cur == nil {
		return false
	}
	if !prev.HasVideoFrames || !cur.HasVideoFrames {
		return false
	}
	return cur.VideoFramesDecoded > prev.VideoFramesDecoded
}
