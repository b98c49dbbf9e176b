package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/signaling"
	"github.com/vovakirdan/wirecall/internal/stats"
)

// Auxiliary data-channel message types.
const (
	ChannelTypeMuteState = "muteStateChanged"

	channelLabel = "wirecall"
)

// ChannelMessage is the in-band JSON frame exchanged over the session's
// auxiliary data channel.
type ChannelMessage struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted,omitempty"`
}

// ParseChannelMessage decodes an auxiliary channel payload.
func ParseChannelMessage(data []byte) (ChannelMessage, error) {
	var msg ChannelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("parse channel message: %w", err)
	}
	return msg, nil
}

// ErrCreateOffer wraps transport-side offer generation failures.
var ErrCreateOffer = errors.New("cannot create offer")

// Options configures one media session.
type Options struct {
	Logger     *zerolog.Logger
	Clock      clock.Clock
	ICEServers []webrtc.ICEServer

	Initiator       bool
	VideoSupported  bool // peer supports video calling; drives the SDP patch
	VideoNegotiated bool

	ConnectingStatsInterval time.Duration
	ConnectedStatsInterval  time.Duration
	VideoCheckInterval      time.Duration

	Classifier  stats.Classifier
	AudioRouter AudioRouter
	VideoSource VideoSource
}

// Client owns exactly one peer connection for the lifetime of one call
// session. It translates intents into transport operations and surfaces
// transport events on a single channel.
type Client struct {
	log  *zerolog.Logger
	clk  clock.Clock
	opts Options
	pc   *webrtc.PeerConnection

	events chan Event

	pollCtx    context.Context
	pollCancel context.CancelFunc

	audioQueue chan func()

	mu              sync.Mutex
	dc              *webrtc.DataChannel
	pendingData     [][]byte
	muted           bool
	speaker         bool
	videoNegotiated bool
	receivingVideo  bool
	cellularWarned  bool
	connectedOnce   bool
	checkingSeen    bool
	lastFrames      uint32
	hasLastFrames   bool
	videoTrack      *webrtc.TrackLocalStaticSample
	audioTrack      *webrtc.TrackLocalStaticSample
	renderer        VideoRenderer
	closed          bool
}

// NewClient builds the peer connection and wires its callbacks.
func NewClient(opts Options) (*Client, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ConnectingStatsInterval == 0 {
		opts.ConnectingStatsInterval = 2 * time.Second
	}
	if opts.ConnectedStatsInterval == 0 {
		opts.ConnectedStatsInterval = 30 * time.Second
	}
	if opts.VideoCheckInterval == 0 {
		opts.VideoCheckInterval = 2 * time.Second
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: opts.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pollCtx, pollCancel := context.WithCancel(context.Background())
	c := &Client{
		log:             opts.Logger,
		clk:             opts.Clock,
		opts:            opts,
		pc:              pc,
		events:          make(chan Event, 64),
		pollCtx:         pollCtx,
		pollCancel:      pollCancel,
		audioQueue:      make(chan func(), 16),
		videoNegotiated: opts.VideoNegotiated,
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", channelLabel)
	if err != nil {
		pc.Close()
		pollCancel()
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		pollCancel()
		return nil, fmt.Errorf("add audio track: %w", err)
	}
	c.audioTrack = audioTrack

	if opts.Initiator {
		dc, err := pc.CreateDataChannel(channelLabel, nil)
		if err != nil {
			pc.Close()
			pollCancel()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		c.attachDataChannel(dc)
	} else {
		pc.OnDataChannel(c.attachDataChannel)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		c.emit(Event{Kind: EventLocalCandidate, Candidate: signaling.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		}})
	})

	pc.OnICEConnectionStateChange(c.onConnectionState)

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		c.mu.Lock()
		r := c.renderer
		c.mu.Unlock()
		if r != nil {
			r.Render(track)
		}
	})

	go c.audioLoop()

	return c, nil
}

// Events returns the session event stream. The channel is never closed;
// the owner stops reading after Close.
func (c *Client) Events() <-chan Event { return c.events }

// CreateOffer generates, patches and installs the local offer, returning
// the patched SDP for transmission.
func (c *Client) CreateOffer(ctx context.Context) (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateOffer, err)
	}
	patched, err := Patch(SDPLocalOffer, offer.SDP, ExtensionConfig{VideoSupported: c.opts.VideoSupported})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateOffer, err)
	}
	offer.SDP = patched
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateOffer, err)
	}
	return patched, nil
}

// CreateAnswer generates and installs the local answer. No patch is
// applied on the answer path.
func (c *Client) CreateAnswer(ctx context.Context) (string, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local answer: %w", err)
	}
	return answer.SDP, nil
}

// ApplyRemoteDescription installs the peer's description. Failure is fatal
// to the session; the owner must hang up.
func (c *Client) ApplyRemoteDescription(ctx context.Context, kind SDPKind, sdp string) error {
	sdpType := webrtc.SDPTypeAnswer
	if kind == SDPRemoteOffer {
		sdpType = webrtc.SDPTypeOffer
	}
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: sdp}); err != nil {
		return fmt.Errorf("apply remote description: %w", err)
	}
	return nil
}

// AddRemoteCandidate feeds one remote candidate to the transport.
// Failures are logged, not escalated; missing one candidate does not
// abort the call.
func (c *Client) AddRemoteCandidate(candidate signaling.Candidate) {
	err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("candidate", candidate.Candidate).Msg("add remote candidate failed")
	}
}

// RemoveRemoteCandidates is accepted for interface completeness. The
// transport engine has no candidate withdrawal operation, so removals are
// logged and otherwise ignored.
func (c *Client) RemoveRemoteCandidates(candidates []signaling.Candidate) {
	c.log.Debug().Int("count", len(candidates)).Msg("ignoring remote candidate removal")
}

// Mute disables local audio and announces the flip in-band.
func (c *Client) Mute() { c.setMuted(true) }

// Unmute enables local audio and announces the flip in-band.
func (c *Client) Unmute() { c.setMuted(false) }

// Muted reports the local mute flag; the audio capture layer consults it.
func (c *Client) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Client) setMuted(muted bool) {
	c.mu.Lock()
	if c.muted == muted {
		c.mu.Unlock()
		return
	}
	c.muted = muted
	c.mu.Unlock()

	c.sendChannelMessage(ChannelMessage{Type: ChannelTypeMuteState, Muted: muted})
	c.emit(Event{Kind: EventMuteChanged, Flag: muted})
}

// SetSpeaker reconfigures the audio route. The change runs on the serial
// audio queue so concurrent route changes cannot race.
func (c *Client) SetSpeaker(on bool) {
	select {
	case c.audioQueue <- func() {
		if c.opts.AudioRouter != nil {
			if err := c.opts.AudioRouter.SetSpeaker(on); err != nil {
				c.log.Warn().Err(err).Bool("speaker", on).Msg("speaker route change failed")
				return
			}
		}
		c.mu.Lock()
		c.speaker = on
		c.mu.Unlock()
		c.emit(Event{Kind: EventSpeakerChanged, Flag: on})
	}:
	default:
		c.log.Warn().Msg("audio queue full, dropping speaker change")
	}
}

// StartLocalVideo adds the outgoing video track and starts capture.
func (c *Client) StartLocalVideo(profile config.VideoProfile, useBackCamera bool) error {
	c.mu.Lock()
	if c.videoTrack != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", channelLabel)
	if err != nil {
		return fmt.Errorf("create video track: %w", err)
	}
	if _, err := c.pc.AddTrack(track); err != nil {
		return fmt.Errorf("add video track: %w", err)
	}
	if c.opts.VideoSource != nil {
		if err := c.opts.VideoSource.Start(track, profile, useBackCamera); err != nil {
			return fmt.Errorf("start video source: %w", err)
		}
	}

	c.mu.Lock()
	c.videoTrack = track
	c.videoNegotiated = true
	c.mu.Unlock()
	return nil
}

// StopLocalVideo stops capture; the track stays negotiated but idle.
func (c *Client) StopLocalVideo() {
	if c.opts.VideoSource != nil {
		c.opts.VideoSource.Stop()
	}
}

// RenderRemoteVideo routes inbound video frames to the renderer.
func (c *Client) RenderRemoteVideo(r VideoRenderer) {
	c.mu.Lock()
	c.renderer = r
	c.mu.Unlock()
}

// StopRemoteVideoRendering detaches the renderer.
func (c *Client) StopRemoteVideoRendering() {
	c.mu.Lock()
	r := c.renderer
	c.renderer = nil
	c.mu.Unlock()
	if r != nil {
		r.Stop()
	}
}

// SetOutgoingVideoLimits applies a new encoder cap, typically when the
// remote quality profile or the relay status changes.
func (c *Client) SetOutgoingVideoLimits(profile config.VideoProfile) {
	if c.opts.VideoSource != nil {
		c.opts.VideoSource.SetLimits(profile)
	}
	c.log.Debug().
		Int("kbps", profile.MaxBitrateKbps).
		Int("fps", profile.MaxFPS).
		Int("w", profile.Width).
		Int("h", profile.Height).
		Msg("outgoing video limits updated")
}

// Close stops polling, shuts capture down and closes the peer connection.
// It takes one final detailed stats snapshot first and returns it.
func (c *Client) Close(ctx context.Context) *stats.Snapshot {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.pollCancel()

	final := stats.FromReport(c.pc.GetStats(), c.opts.Classifier)

	if c.opts.VideoSource != nil {
		c.opts.VideoSource.Stop()
	}
	c.StopRemoteVideoRendering()

	// Deactivate the audio route on the serial queue before closing.
	done := make(chan struct{})
	select {
	case c.audioQueue <- func() {
		if c.opts.AudioRouter != nil {
			_ = c.opts.AudioRouter.SetSpeaker(false)
		}
		close(done)
	}:
		select {
		case <-done:
		case <-ctx.Done():
		}
	default:
	}
	close(c.audioQueue)

	if err := c.pc.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close peer connection")
	}
	return &final
}

func (c *Client) attachDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		pending := c.pendingData
		c.pendingData = nil
		c.mu.Unlock()
		for _, data := range pending {
			if err := dc.Send(data); err != nil {
				c.log.Warn().Err(err).Msg("flush buffered channel message")
			}
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.emit(Event{Kind: EventChannelData, Data: msg.Data})
	})
}

func (c *Client) sendChannelMessage(msg ChannelMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Warn().Err(err).Msg("encode channel message")
		return
	}

	c.mu.Lock()
	dc := c.dc
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		// Best effort: buffer until the channel opens.
		c.pendingData = append(c.pendingData, data)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := dc.Send(data); err != nil {
		c.log.Warn().Err(err).Msg("send channel message")
	}
}

func (c *Client) onConnectionState(state webrtc.ICEConnectionState) {
	mapped := mapConnState(state)
	c.log.Debug().Str("state", mapped.String()).Msg("transport connection state")

	switch mapped {
	case ConnChecking:
		c.mu.Lock()
		first := !c.checkingSeen
		c.checkingSeen = true
		c.mu.Unlock()
		if first {
			go c.statsPoll(c.opts.ConnectingStatsInterval, func() bool { return c.connected() })
		}
	case ConnConnected, ConnCompleted:
		c.mu.Lock()
		first := !c.connectedOnce
		c.connectedOnce = true
		video := c.videoNegotiated
		c.mu.Unlock()
		if first {
			go c.statsPoll(c.opts.ConnectedStatsInterval, func() bool { return false })
			if video {
				go c.videoCheckPoll()
			}
		}
	}

	c.emit(Event{Kind: EventConnectionState, ConnState: mapped})
}

func (c *Client) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedOnce
}

// statsPoll snapshots the transport on a fixed cadence until the session
// closes or the until predicate trips.
func (c *Client) statsPoll(interval time.Duration, until func() bool) {
	ticker := c.clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if until() {
				return
			}
			snap := stats.FromReport(c.pc.GetStats(), c.opts.Classifier)
			if snap.Cellular() {
				c.mu.Lock()
				warned := c.cellularWarned
				c.cellularWarned = true
				c.mu.Unlock()
				if !warned {
					c.emit(Event{Kind: EventCellularWarning})
				}
			}
			c.emit(Event{Kind: EventStats, Snapshot: &snap})
		case <-c.pollCtx.Done():
			return
		}
	}
}

// videoCheckPoll watches the decoded frame counter and reports flips of
// the "am I receiving video" answer.
func (c *Client) videoCheckPoll() {
	ticker := c.clk.Ticker(c.opts.VideoCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := stats.FromReport(c.pc.GetStats(), c.opts.Classifier)

			c.mu.Lock()
			receiving := snap.HasVideoFrames && c.hasLastFrames && snap.VideoFramesDecoded > c.lastFrames
			c.lastFrames = snap.VideoFramesDecoded
			c.hasLastFrames = snap.HasVideoFrames
			changed := receiving != c.receivingVideo
			c.receivingVideo = receiving
			c.mu.Unlock()

			if changed {
				c.emit(Event{Kind: EventReceivingVideoChanged, Flag: receiving})
			}
		case <-c.pollCtx.Done():
			return
		}
	}
}

func (c *Client) audioLoop() {
	for fn := range c.audioQueue {
		fn()
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Int("kind", int(ev.Kind)).Msg("media event dropped, slow consumer")
	}
}

func mapConnState(state webrtc.ICEConnectionState) ConnState {
	switch state {
	case webrtc.ICEConnectionStateChecking:
		return ConnChecking
	case webrtc.ICEConnectionStateConnected:
		return ConnConnected
	case webrtc.ICEConnectionStateCompleted:
		return ConnCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return ConnDisconnected
	case webrtc.ICEConnectionStateFailed:
		return ConnFailed
	case webrtc.ICEConnectionStateClosed:
		return ConnClosed
	default:
		return ConnNew
	}
}
