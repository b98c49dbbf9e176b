package call

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/media"
	"github.com/vovakirdan/wirecall/internal/signaling"
	"github.com/vovakirdan/wirecall/internal/stats"
	"github.com/vovakirdan/wirecall/internal/store"
	"github.com/vovakirdan/wirecall/internal/utils"
)

// Cap on buffered candidate batches per unknown peer, so a misbehaving
// sender cannot grow the pre-session map without bound.
const maxPreSessionBatches = 16

// Options configures the call service.
type Options struct {
	Logger     *zerolog.Logger
	Clock      clock.Clock
	Config     config.Config
	Sender     signaling.Sender
	Entities   EntityManager
	Permission MicrophonePermission
	Media      MediaFactory
	Metrics    Recorder // optional
}

// Status is a read-only mirror of the service state for the debug surface.
type Status struct {
	State           string `json:"state"`
	Peer            string `json:"peer,omitempty"`
	CallID          uint64 `json:"call_id,omitempty"`
	Initiator       bool   `json:"initiator,omitempty"`
	Video           bool   `json:"video,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

type inboundMsg struct {
	msg  signaling.Message
	done func()
}

type timerKind int

const (
	timerRinging timerKind = iota
	timerIncoming
	timerGrace
)

type timerFire struct {
	kind   timerKind
	callID uint64
}

// Service is the call session state machine. It owns at most one Session
// and processes intents, signaling messages, media events and timer fires
// one at a time on a single goroutine.
type Service struct {
	log      *zerolog.Logger
	clk      clock.Clock
	cfg      config.Config
	sender   signaling.Sender
	entities EntityManager
	perm     MicrophonePermission
	newMedia MediaFactory
	rec      Recorder

	intents chan *Intent
	inbound chan inboundMsg
	timerC  chan timerFire
	events  chan Event

	runCtx context.Context

	statusMu   sync.RWMutex
	status     Status
	lastReport string

	// Everything below is owned by the Run goroutine.
	state         State
	session       *Session
	media         MediaSession
	mediaCh       <-chan media.Event
	engine        *stats.Engine
	seenRelayOut  map[netip.Addr]struct{}
	seenRelayIn   map[netip.Addr]struct{}
	localPending  []signaling.Candidate
	remotePending []signaling.Candidate
	preSession    map[string][]signaling.CandidatesData

	ringingTimer  *clock.Timer
	incomingTimer *clock.Timer
	graceTimer    *clock.Timer
	durTicker     *clock.Ticker
	durCh         <-chan time.Time

	durationSec   int
	connectedOnce bool
	screenVisible bool
}

// NewService builds the state machine. Run must be called before intents
// or messages are submitted.
func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Service{
		log:        opts.Logger,
		clk:        opts.Clock,
		cfg:        opts.Config,
		sender:     opts.Sender,
		entities:   opts.Entities,
		perm:       opts.Permission,
		newMedia:   opts.Media,
		rec:        opts.Metrics,
		intents:    make(chan *Intent, 16),
		inbound:    make(chan inboundMsg, 16),
		timerC:     make(chan timerFire, 8),
		events:     make(chan Event, 64),
		preSession: make(map[string][]signaling.CandidatesData),
		status:     Status{State: StateIdle.String()},
	}
}

// Events returns the notification stream for the single consumer.
func (s *Service) Events() <-chan Event { return s.events }

// Submit queues one user intent. Its Done callback fires exactly once
// when processing finishes.
func (s *Service) Submit(in *Intent) {
	s.intents <- in
}

// HandleMessage is the signaling.Handler entry point.
func (s *Service) HandleMessage(msg signaling.Message, done func()) {
	s.inbound <- inboundMsg{msg: msg, done: done}
}

// Status returns a copy of the current state for the debug surface.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// LastStatsReport returns the most recent long diagnostics report.
func (s *Service) LastStatsReport() string {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.lastReport
}

// Run processes work until the context is cancelled. An active call is
// torn down on exit so no timers or sessions outlive the service.
func (s *Service) Run(ctx context.Context) {
	s.runCtx = ctx
	for {
		select {
		case in := <-s.intents:
			s.handleIntent(in)
		case m := <-s.inbound:
			s.handleMessage(m.msg)
			if m.done != nil {
				m.done()
			}
		case f := <-s.timerC:
			s.handleTimer(f)
		case ev := <-s.mediaCh:
			s.handleMediaEvent(ev)
		case <-s.durCh:
			s.durationSec++
			s.mirrorStatus()
			s.emit(Event{Kind: EventDurationTick, Seconds: s.durationSec})
		case <-ctx.Done():
			if s.session != nil {
				s.log.Info().Msg("shutting down with active call")
				s.sendHangup()
				s.finishCall(StateEnded, finishOpts{platform: EventEnded})
			}
			return
		}
	}
}

// ---- intents ----

func (s *Service) handleIntent(in *Intent) {
	defer func() {
		if in.Done != nil {
			in.Done()
		}
	}()

	s.log.Debug().Str("intent", in.Kind.String()).Str("state", s.state.String()).Msg("processing intent")

	switch in.Kind {
	case IntentCall:
		s.startOutgoing(in.Peer, false)
	case IntentCallVideo:
		s.startOutgoing(in.Peer, true)
	case IntentAccept:
		s.accept()
	case IntentReject, IntentRejectBusy, IntentRejectTimeout,
		IntentRejectDisabled, IntentRejectOffHours, IntentRejectUnknown:
		s.rejectIntent(in)
	case IntentEnd:
		s.endCall()
	case IntentMuteAudio:
		if s.media != nil {
			s.media.Mute()
		} else {
			s.logMismatch(in.Kind.String())
		}
	case IntentUnmuteAudio:
		if s.media != nil {
			s.media.Unmute()
		} else {
			s.logMismatch(in.Kind.String())
		}
	case IntentSpeakerOn:
		if s.media != nil {
			s.media.SetSpeaker(true)
		} else {
			s.logMismatch(in.Kind.String())
		}
	case IntentSpeakerOff:
		if s.media != nil {
			s.media.SetSpeaker(false)
		} else {
			s.logMismatch(in.Kind.String())
		}
	case IntentShowCallScreen:
		s.screenVisible = true
		s.emit(Event{Kind: EventPresentCallScreen, Session: s.sessionCopy(), State: s.state})
	case IntentHideCallScreen:
		s.screenVisible = false
		s.emit(Event{Kind: EventDismissCallScreen})
	default:
		s.logMismatch(in.Kind.String())
	}
}

func (s *Service) startOutgoing(peer string, video bool) {
	if s.state != StateIdle {
		s.logMismatch("call")
		return
	}

	granted, err := s.perm.RequestMicrophone(s.runCtx)
	if err != nil {
		s.log.Warn().Err(err).Msg("microphone permission request failed")
	}
	if !granted {
		s.emit(Event{Kind: EventAlert, Alert: AlertMicrophonePermission})
		return
	}

	session := &Session{
		CallID:          utils.NewCallID(),
		Peer:            peer,
		Initiator:       true,
		VideoNegotiated: video,
	}

	m, err := s.newMedia(true, video)
	if err != nil {
		s.log.Error().Err(err).Msg("create media session")
		s.emit(Event{Kind: EventAlert, Alert: AlertOfferFailed})
		return
	}

	offerSDP, err := m.CreateOffer(s.runCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("create offer")
		m.Close(s.runCtx)
		s.emit(Event{Kind: EventAlert, Alert: AlertOfferFailed})
		return
	}

	s.adoptSession(session, m)

	err = s.sender.SendOffer(s.runCtx, peer, signaling.OfferData{
		CallID:         session.CallID,
		SDP:            offerSDP,
		VideoAvailable: video,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("send offer")
		s.emit(Event{Kind: EventAlert, Alert: AlertOfferFailed})
		s.reset()
		return
	}

	if s.rec != nil {
		s.rec.CallStarted(true)
	}
	s.setState(StateSendOffer)
	s.screenVisible = true
	s.emit(Event{Kind: EventPresentCallScreen, Session: *session, State: s.state})
	s.ringingTimer = s.afterFunc(s.cfg.RingingTimeout, timerRinging, session.CallID)
}

func (s *Service) accept() {
	if s.state != StateIncomingRinging || s.session == nil {
		s.logMismatch("accept")
		return
	}
	session := s.session

	m, err := s.newMedia(false, session.VideoNegotiated)
	if err != nil {
		s.log.Error().Err(err).Msg("create media session for accept")
		s.rejectCurrent(signaling.RejectUnknown, StateRejectedUnknown, EventAnswerFailed)
		return
	}

	if err := m.ApplyRemoteDescription(s.runCtx, media.SDPRemoteOffer, session.offerSDP); err != nil {
		s.log.Error().Err(err).Msg("apply remote offer")
		m.Close(s.runCtx)
		s.emit(Event{Kind: EventAlert, Alert: AlertAnswerFailed})
		s.rejectCurrent(signaling.RejectUnknown, StateRejectedUnknown, EventAnswerFailed)
		return
	}

	answerSDP, err := m.CreateAnswer(s.runCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("create answer")
		m.Close(s.runCtx)
		s.emit(Event{Kind: EventAlert, Alert: AlertAnswerFailed})
		s.rejectCurrent(signaling.RejectUnknown, StateRejectedUnknown, EventAnswerFailed)
		return
	}

	s.media = m
	s.mediaCh = m.Events()

	err = s.sender.SendAnswer(s.runCtx, session.Peer, signaling.AnswerData{
		CallID:         session.CallID,
		Accept:         true,
		SDP:            &answerSDP,
		VideoAvailable: session.VideoNegotiated,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("send answer")
	}

	s.setState(StateSendAnswer)
	s.emit(Event{Kind: EventAccepted, Session: *session})

	// Drain candidates buffered while ringing plus any that arrived
	// before the session existed.
	s.applyRemoteCandidates(s.drainBuffered(session))
}

func (s *Service) rejectIntent(in *Intent) {
	reason := rejectReasonForIntent(in.Kind)

	targetsCurrent := s.session != nil &&
		(in.Peer == "" || s.session.Matches(in.Peer, in.CallID))

	if targetsCurrent && s.state == StateIncomingRinging {
		s.rejectCurrent(reason, rejectState(reason), EventRejected)
		return
	}

	// The target session is no longer current; the missed call is still
	// recorded so the conversation shows it.
	if in.Peer != "" {
		s.appendRecord(in.Peer, store.CallMessageMissed, string(reason), 0, false)
		s.incrementUnread(in.Peer)
		return
	}
	s.logMismatch(in.Kind.String())
}

// rejectCurrent sends a reject answer for the current session and runs the
// terminal transition.
func (s *Service) rejectCurrent(reason signaling.RejectReason, st State, platform EventKind) {
	session := s.session
	err := s.sender.SendAnswer(s.runCtx, session.Peer, signaling.AnswerData{
		CallID:       session.CallID,
		Accept:       false,
		RejectReason: reason,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("send reject answer")
	}
	s.finishCall(st, finishOpts{
		platform:   platform,
		tone:       ToneFailed,
		recordKind: store.CallMessageMissed,
		reason:     string(reason),
		addUnread:  !s.screenVisible,
	})
}

func (s *Service) endCall() {
	if s.state == StateIdle || s.session == nil {
		s.logMismatch("end")
		return
	}
	if !s.state.Terminal() {
		s.sendHangup()
	}
	kind := store.CallMessageEnded
	if !s.session.Initiator && !s.connectedOnce {
		kind = store.CallMessageMissed
	}
	s.finishCall(StateEnded, finishOpts{
		platform:   EventEnded,
		tone:       ToneEnded,
		recordKind: kind,
	})
}

// ---- signaling messages ----

func (s *Service) handleMessage(msg signaling.Message) {
	s.log.Debug().
		Str("type", msg.Kind.String()).
		Str("peer", msg.Peer).
		Uint64("call_id", msg.CallID()).
		Str("state", s.state.String()).
		Msg("processing signaling message")

	switch msg.Kind {
	case signaling.KindOffer:
		s.handleOffer(msg)
	case signaling.KindAnswer:
		s.handleAnswer(msg)
	case signaling.KindRinging:
		s.handleRinging(msg)
	case signaling.KindHangup:
		s.handleHangup(msg)
	case signaling.KindIceCandidates:
		s.handleIceCandidates(msg)
	}
}

func (s *Service) handleOffer(msg signaling.Message) {
	offer := msg.Offer

	switch {
	case s.state == StateIdle:
		s.processOffer(msg.Peer, offer)

	case s.state == StateIncomingRinging && s.session != nil && s.session.Peer == msg.Peer:
		// Latest offer wins for the same peer: the earlier session is
		// fully torn down before the new offer is processed.
		s.log.Info().Uint64("old_call_id", s.session.CallID).
			Uint64("new_call_id", offer.CallID).
			Msg("replacing ringing session with newer offer from same peer")
		s.teardownMedia()
		s.reset()
		s.processOffer(msg.Peer, offer)

	default:
		// Busy: reject without touching the current session.
		err := s.sender.SendAnswer(s.runCtx, msg.Peer, signaling.AnswerData{
			CallID:       offer.CallID,
			Accept:       false,
			RejectReason: signaling.RejectBusy,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("send busy answer")
		}
		s.appendRecord(msg.Peer, store.CallMessageMissed, string(signaling.RejectBusy), 0, false)
		s.incrementUnread(msg.Peer)
	}
}

func (s *Service) processOffer(peer string, offer *signaling.OfferData) {
	if s.cfg.InDoNotDisturb(s.clk.Now()) {
		// Silent rejection, no permission prompt, no ringing.
		err := s.sender.SendAnswer(s.runCtx, peer, signaling.AnswerData{
			CallID:       offer.CallID,
			Accept:       false,
			RejectReason: signaling.RejectOffHours,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("send off-hours answer")
		}
		s.appendRecord(peer, store.CallMessageMissed, string(signaling.RejectOffHours), 0, false)
		s.incrementUnread(peer)
		return
	}

	granted, err := s.perm.RequestMicrophone(s.runCtx)
	if err != nil {
		s.log.Warn().Err(err).Msg("microphone permission request failed")
	}
	if !granted {
		sendErr := s.sender.SendAnswer(s.runCtx, peer, signaling.AnswerData{
			CallID:       offer.CallID,
			Accept:       false,
			RejectReason: signaling.RejectDisabled,
		})
		if sendErr != nil {
			s.log.Error().Err(sendErr).Msg("send disabled answer")
		}
		if s.screenVisible {
			s.emit(Event{Kind: EventAlert, Alert: AlertMicrophonePermission})
		}
		s.appendRecord(peer, store.CallMessageMissed, string(signaling.RejectDisabled), 0, false)
		s.incrementUnread(peer)
		return
	}

	session := &Session{
		CallID:          offer.CallID,
		Peer:            peer,
		Initiator:       false,
		VideoNegotiated: offer.VideoAvailable,
		offerSDP:        offer.SDP,
	}
	s.adoptSession(session, nil)
	s.setState(StateReceivedOffer)

	if err := s.sender.SendRinging(s.runCtx, peer, signaling.RingingData{CallID: offer.CallID}); err != nil {
		s.log.Error().Err(err).Msg("send ringing")
	}

	if s.rec != nil {
		s.rec.CallStarted(false)
	}
	s.setState(StateIncomingRinging)
	s.emit(Event{Kind: EventIncomingReported, Peer: peer, Session: *session})
	s.incomingTimer = s.afterFunc(s.cfg.IncomingTimeout, timerIncoming, session.CallID)
}

func (s *Service) handleAnswer(msg signaling.Message) {
	ans := msg.Answer
	if !s.session.Matches(msg.Peer, ans.CallID) {
		s.logDrop(msg)
		return
	}
	if s.state != StateSendOffer && s.state != StateOutgoingRinging {
		s.logDrop(msg)
		return
	}

	if !ans.Accept {
		// A reject answer transitions directly to the terminal state,
		// never through receivedAnswer.
		reason := ans.RejectReason
		if reason == signaling.RejectNone {
			reason = signaling.RejectUnknown
		}
		tone := ToneFailed
		if reason == signaling.RejectBusy {
			tone = ToneBusy
		}
		s.finishCall(rejectState(reason), finishOpts{
			platform:   EventRejected,
			tone:       tone,
			recordKind: store.CallMessageRejected,
			reason:     string(reason),
		})
		return
	}

	s.setState(StateReceivedAnswer)

	if ans.SDP == nil {
		s.log.Warn().Msg("accept answer without sdp")
		s.answerFailed()
		return
	}
	if err := s.media.ApplyRemoteDescription(s.runCtx, media.SDPRemoteAnswer, *ans.SDP); err != nil {
		s.log.Error().Err(err).Msg("apply remote answer")
		s.answerFailed()
		return
	}

	s.session.VideoNegotiated = s.session.VideoNegotiated && ans.VideoAvailable
	s.setState(StateInitializing)
}

// answerFailed handles a fatal remote-answer application: the peer would
// otherwise keep waiting, so a hangup is sent before teardown.
func (s *Service) answerFailed() {
	s.sendHangup()
	s.emit(Event{Kind: EventAlert, Alert: AlertAnswerFailed})
	s.finishCall(StateRejectedUnknown, finishOpts{
		platform:   EventAnswerFailed,
		tone:       ToneFailed,
		recordKind: store.CallMessageRejected,
		reason:     string(signaling.RejectUnknown),
	})
}

func (s *Service) handleRinging(msg signaling.Message) {
	if !s.session.Matches(msg.Peer, msg.Ringing.CallID) || s.state != StateSendOffer {
		s.logDrop(msg)
		return
	}
	s.setState(StateOutgoingRinging)
}

func (s *Service) handleHangup(msg signaling.Message) {
	if !s.session.Matches(msg.Peer, msg.Hangup.CallID) || !s.state.Live() {
		// Duplicate or stale hangup: an idempotent no-op.
		s.logDrop(msg)
		return
	}
	kind := store.CallMessageEnded
	addUnread := false
	if !s.connectedOnce && !s.session.Initiator {
		kind = store.CallMessageMissed
		addUnread = !s.screenVisible
	}
	s.finishCall(StateRemoteEnded, finishOpts{
		platform:   EventEnded,
		tone:       ToneEnded,
		recordKind: kind,
		addUnread:  addUnread,
	})
}

func (s *Service) handleIceCandidates(msg signaling.Message) {
	cd := msg.Candidates

	if s.session.Matches(msg.Peer, cd.CallID) {
		if cd.Removed {
			// The removed flag is parsed for wire compatibility but its
			// effect is intentionally not applied.
			s.log.Debug().Int("count", len(cd.Candidates)).Msg("ignoring remote candidate removal")
			return
		}
		switch {
		case s.state.ActiveSignaling():
			s.applyRemoteCandidates(cd.Candidates)
		case s.state == StateReceivedOffer || s.state == StateIncomingRinging:
			s.remotePending = append(s.remotePending, cd.Candidates...)
		default:
			s.logDrop(msg)
		}
		return
	}

	// No matching session: keep the batch keyed by peer for later
	// correlation at accept time.
	batches := s.preSession[msg.Peer]
	if len(batches) >= maxPreSessionBatches {
		batches = batches[1:]
	}
	s.preSession[msg.Peer] = append(batches, *cd)
}

func (s *Service) applyRemoteCandidates(candidates []signaling.Candidate) {
	if s.media == nil {
		return
	}
	for _, c := range candidates {
		if !ShouldForwardCandidate(c.Candidate, s.cfg.EnableIPv6, s.seenRelayIn) {
			s.log.Debug().Str("candidate", c.Candidate).Msg("suppressing remote candidate")
			continue
		}
		s.media.AddRemoteCandidate(c)
	}
}

// drainBuffered collects candidates buffered while ringing and batches
// that arrived before the session existed, scoped to the session's call.
func (s *Service) drainBuffered(session *Session) []signaling.Candidate {
	out := s.remotePending
	s.remotePending = nil

	for _, batch := range s.preSession[session.Peer] {
		if batch.CallID != session.CallID || batch.Removed {
			continue
		}
		out = append(out, batch.Candidates...)
	}
	delete(s.preSession, session.Peer)
	return out
}

// ---- media events ----

func (s *Service) handleMediaEvent(ev media.Event) {
	switch ev.Kind {
	case media.EventConnectionState:
		s.handleConnState(ev.ConnState)
	case media.EventLocalCandidate:
		s.handleLocalCandidate(ev.Candidate)
	case media.EventCandidatesRemoved:
		s.handleLocalCandidatesRemoved(ev.Candidates)
	case media.EventChannelData:
		s.handleChannelData(ev.Data)
	case media.EventMuteChanged:
		s.emit(Event{Kind: EventMuteChanged, Flag: ev.Flag})
	case media.EventSpeakerChanged:
		s.emit(Event{Kind: EventSpeakerChanged, Flag: ev.Flag})
	case media.EventReceivingVideoChanged:
		s.emit(Event{Kind: EventReceivingVideoChanged, Flag: ev.Flag})
	case media.EventCellularWarning:
		s.emit(Event{Kind: EventCellularWarning})
	case media.EventStats:
		s.handleStats(ev.Snapshot)
	}
}

func (s *Service) handleConnState(st media.ConnState) {
	if s.session == nil {
		return
	}
	s.log.Debug().Str("transport", st.String()).Str("state", s.state.String()).Msg("transport state change")

	switch st {
	case media.ConnChecking:
		if s.state == StateSendAnswer || s.state == StateReceivedAnswer {
			s.setState(StateInitializing)
		}

	case media.ConnConnected, media.ConnCompleted:
		switch {
		case s.state == StateReconnecting:
			s.stopTimer(&s.graceTimer)
			s.setState(StateCalling)
		case !s.connectedOnce && !s.state.Terminal():
			s.connectedOnce = true
			s.stopTimer(&s.graceTimer)
			if s.rec != nil {
				s.rec.CallConnected()
			}
			s.setState(StateCalling)
			s.emit(Event{Kind: EventConnected, Session: s.sessionCopy()})
			if s.session.VideoNegotiated && s.media != nil {
				if err := s.media.StartLocalVideo(s.cfg.Profile(s.cfg.DefaultProfile), false); err != nil {
					s.log.Warn().Err(err).Msg("start local video")
				}
			}
		}

	case media.ConnFailed:
		if s.state == StateReconnecting {
			// Second failure inside the grace window is final.
			s.failureTeardown()
			return
		}
		s.graceTimer = s.afterFunc(s.cfg.FailedGraceTimeout, timerGrace, s.session.CallID)
		if s.connectedOnce {
			s.setState(StateReconnecting)
		}
		// Never-connected sessions stay in initializing while the grace
		// timer decides.

	case media.ConnDisconnected:
		// Transient; the transport either recovers or reports failed.
	case media.ConnClosed:
		// Teardown path already handles closure.
	}
}

func (s *Service) handleLocalCandidate(c signaling.Candidate) {
	if s.session == nil {
		return
	}
	if !ShouldForwardCandidate(c.Candidate, s.cfg.EnableIPv6, s.seenRelayOut) {
		s.log.Debug().Str("candidate", c.Candidate).Msg("suppressing local candidate")
		return
	}
	s.localPending = append(s.localPending, c)
	if s.state.TransmitsCandidates() {
		s.flushLocalCandidates()
	}
}

func (s *Service) handleLocalCandidatesRemoved(candidates []signaling.Candidate) {
	if s.session == nil || !s.state.TransmitsCandidates() {
		return
	}
	err := s.sender.SendIceCandidates(s.runCtx, s.session.Peer, signaling.CandidatesData{
		CallID:     s.session.CallID,
		Candidates: candidates,
		Removed:    true,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("send candidate removal")
	}
}

func (s *Service) flushLocalCandidates() {
	if len(s.localPending) == 0 || s.session == nil {
		return
	}
	batch := s.localPending
	s.localPending = nil
	err := s.sender.SendIceCandidates(s.runCtx, s.session.Peer, signaling.CandidatesData{
		CallID:     s.session.CallID,
		Candidates: batch,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("send ice candidates")
	}
}

func (s *Service) handleChannelData(data []byte) {
	msg, err := media.ParseChannelMessage(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("bad auxiliary channel payload")
		return
	}
	if msg.Type == media.ChannelTypeMuteState {
		s.emit(Event{Kind: EventPeerMuteChanged, Flag: msg.Muted})
	}
}

func (s *Service) handleStats(snap *stats.Snapshot) {
	if s.engine == nil || snap == nil {
		return
	}
	obs := s.engine.Observe(*snap)

	if s.rec != nil {
		if obs.AudioLoss.OK {
			s.rec.ObserveLoss("audio", obs.AudioLoss.Value)
		}
		if obs.VideoLoss.OK {
			s.rec.ObserveLoss("video", obs.VideoLoss.Value)
		}
		if obs.AudioBitrateOut.OK {
			s.rec.ObserveBitrate("audio", "out", obs.AudioBitrateOut.BitsPerSec)
		}
		if obs.AudioBitrateIn.OK {
			s.rec.ObserveBitrate("audio", "in", obs.AudioBitrateIn.BitsPerSec)
		}
		if obs.VideoBitrateOut.OK {
			s.rec.ObserveBitrate("video", "out", obs.VideoBitrateOut.BitsPerSec)
		}
		if obs.VideoBitrateIn.OK {
			s.rec.ObserveBitrate("video", "in", obs.VideoBitrateIn.BitsPerSec)
		}
	}

	// Relay transitions shift the outgoing video quality profile.
	if obs.RelayChanged && s.session != nil && s.session.VideoNegotiated && s.media != nil {
		name := s.cfg.DefaultProfile
		if obs.Relayed {
			name = s.cfg.RelayedProfile
		}
		s.media.SetOutgoingVideoLimits(s.cfg.Profile(name))
	}

	cur, prev := s.engine.Current()
	s.statusMu.Lock()
	s.lastReport = stats.LongReport(cur, prev)
	s.statusMu.Unlock()
}

// ---- timers ----

func (s *Service) afterFunc(d time.Duration, kind timerKind, callID uint64) *clock.Timer {
	return s.clk.AfterFunc(d, func() {
		select {
		case s.timerC <- timerFire{kind: kind, callID: callID}:
		case <-s.runCtx.Done():
		}
	})
}

func (s *Service) handleTimer(f timerFire) {
	if s.session == nil || s.session.CallID != f.callID {
		s.log.Debug().Uint64("call_id", f.callID).Msg("stale timer fire")
		return
	}

	switch f.kind {
	case timerRinging:
		if s.state != StateSendOffer && s.state != StateOutgoingRinging {
			return
		}
		s.log.Info().Str("peer", s.session.Peer).Msg("outgoing ringing timed out")
		s.sendHangup()
		s.emit(Event{Kind: EventAlert, Alert: AlertPeerUnreachable})
		s.finishCall(StateEnded, finishOpts{
			platform:   EventTimedOut,
			tone:       ToneFailed,
			recordKind: store.CallMessageEnded,
		})

	case timerIncoming:
		if s.state != StateIncomingRinging {
			return
		}
		s.log.Info().Str("peer", s.session.Peer).Msg("incoming call timed out")
		err := s.sender.SendAnswer(s.runCtx, s.session.Peer, signaling.AnswerData{
			CallID:       s.session.CallID,
			Accept:       false,
			RejectReason: signaling.RejectTimeout,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("send timeout answer")
		}
		s.finishCall(StateRejectedTimeout, finishOpts{
			platform:   EventTimedOut,
			tone:       ToneFailed,
			recordKind: store.CallMessageMissed,
			reason:     string(signaling.RejectTimeout),
			addUnread:  true,
		})

	case timerGrace:
		if s.state != StateReconnecting && s.state != StateInitializing {
			return
		}
		s.failureTeardown()
	}
}

// failureTeardown runs the final transport-failure path: the user only
// sees the error after the grace window, so brief blips stay silent.
func (s *Service) failureTeardown() {
	s.emit(Event{Kind: EventAlert, Alert: AlertConnectionLost})
	if !s.connectedOnce {
		s.sendHangup()
	}
	s.finishCall(StateEnded, finishOpts{
		platform:   EventEnded,
		tone:       ToneFailed,
		recordKind: store.CallMessageEnded,
	})
}

// ---- lifecycle helpers ----

func (s *Service) adoptSession(session *Session, m MediaSession) {
	s.session = session
	s.media = m
	if m != nil {
		s.mediaCh = m.Events()
	}
	s.engine = stats.NewEngine()
	s.seenRelayOut = make(map[netip.Addr]struct{})
	s.seenRelayIn = make(map[netip.Addr]struct{})
	s.durationSec = 0
	s.connectedOnce = false
	s.mirrorStatus()
}

type finishOpts struct {
	platform   EventKind
	tone       string
	recordKind store.CallMessageKind
	reason     string
	addUnread  bool
}

// finishCall runs every end-of-call side effect exactly once: terminal
// state emission, platform notification, tone, system message, unread
// bump, metrics, then the reset back to idle.
func (s *Service) finishCall(st State, opts finishOpts) {
	session := s.sessionCopy()
	duration := time.Duration(s.durationSec) * time.Second

	s.setState(st)
	s.emit(Event{Kind: opts.platform, Session: session, State: st, Peer: session.Peer})
	if opts.tone != "" {
		s.emit(Event{Kind: EventTone, Tone: opts.tone})
	}

	if opts.recordKind != "" {
		durSec := int64(0)
		if s.connectedOnce {
			durSec = int64(s.durationSec)
		}
		s.appendRecord(session.Peer, opts.recordKind, opts.reason, durSec, session.Initiator)
	}
	if opts.addUnread {
		s.incrementUnread(session.Peer)
	}

	if s.rec != nil {
		if !s.connectedOnce {
			duration = 0
		}
		s.rec.CallEnded(st.String(), duration)
	}

	s.teardownMedia()
	s.reset()
}

// teardownMedia closes the media session, feeding its final snapshot to
// the stats engine for the extended teardown report.
func (s *Service) teardownMedia() {
	if s.media == nil {
		return
	}
	final := s.media.Close(s.runCtx)
	if final != nil && s.engine != nil {
		s.engine.Observe(*final)
		cur, prev := s.engine.Current()
		report := stats.LongReport(cur, prev)
		s.statusMu.Lock()
		s.lastReport = report
		s.statusMu.Unlock()
		s.log.Info().Msg("final call diagnostics:\n" + report)
	}
	s.media = nil
	s.mediaCh = nil
}

// reset releases every per-session resource and returns to idle. After it
// runs, no timers are armed and both candidate buffers are empty.
func (s *Service) reset() {
	s.stopTimer(&s.ringingTimer)
	s.stopTimer(&s.incomingTimer)
	s.stopTimer(&s.graceTimer)
	s.stopTicker()

	if s.session != nil {
		delete(s.preSession, s.session.Peer)
	}
	s.localPending = nil
	s.remotePending = nil
	s.seenRelayOut = nil
	s.seenRelayIn = nil
	s.engine = nil
	s.session = nil
	s.media = nil
	s.mediaCh = nil
	s.durationSec = 0
	s.connectedOnce = false

	if s.screenVisible {
		s.screenVisible = false
		s.emit(Event{Kind: EventDismissCallScreen})
	}
	s.setState(StateIdle)
}

func (s *Service) setState(st State) {
	if s.state == st {
		return
	}
	s.state = st

	// Timers are invalidated per-state on every transition, not just at
	// teardown.
	if st != StateSendOffer && st != StateOutgoingRinging {
		s.stopTimer(&s.ringingTimer)
	}
	if st != StateIncomingRinging {
		s.stopTimer(&s.incomingTimer)
	}
	switch st {
	case StateCalling:
		if s.durTicker == nil {
			s.durTicker = s.clk.Ticker(time.Second)
			s.durCh = s.durTicker.C
		}
	case StateReconnecting:
		// Duration keeps counting across a reconnect attempt.
	default:
		s.stopTicker()
	}

	s.mirrorStatus()
	s.emit(Event{Kind: EventStateChanged, State: st, Session: s.sessionCopy()})

	// Entering a transmitting state releases candidates buffered while
	// pre-answer.
	if st.TransmitsCandidates() {
		s.flushLocalCandidates()
	}
}

func (s *Service) stopTimer(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Service) stopTicker() {
	if s.durTicker != nil {
		s.durTicker.Stop()
		s.durTicker = nil
		s.durCh = nil
	}
}

func (s *Service) sendHangup() {
	if s.session == nil {
		return
	}
	err := s.sender.SendHangup(s.runCtx, s.session.Peer, signaling.HangupData{CallID: s.session.CallID})
	if err != nil {
		s.log.Error().Err(err).Msg("send hangup")
	}
}

func (s *Service) appendRecord(peer string, kind store.CallMessageKind, reason string, durationSec int64, initiator bool) {
	if s.entities == nil {
		return
	}
	err := s.entities.AppendCallMessage(s.runCtx, &store.CallMessage{
		Peer:            peer,
		Kind:            kind,
		Reason:          reason,
		DurationSeconds: durationSec,
		Initiator:       initiator,
	})
	if err != nil {
		s.log.Error().Err(err).Str("peer", peer).Msg("append call message")
	}
}

func (s *Service) incrementUnread(peer string) {
	if s.entities == nil {
		return
	}
	if err := s.entities.IncrementUnread(s.runCtx, peer); err != nil {
		s.log.Error().Err(err).Str("peer", peer).Msg("increment unread")
	}
}

func (s *Service) sessionCopy() Session {
	if s.session == nil {
		return Session{}
	}
	return *s.session
}

func (s *Service) mirrorStatus() {
	st := Status{State: s.state.String(), DurationSeconds: s.durationSec}
	if s.session != nil {
		st.Peer = s.session.Peer
		st.CallID = s.session.CallID
		st.Initiator = s.session.Initiator
		st.Video = s.session.VideoNegotiated
	}
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

func (s *Service) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Int("kind", int(ev.Kind)).Msg("call event dropped, slow consumer")
	}
}

func (s *Service) logMismatch(op string) {
	s.log.Warn().Str("op", op).Str("state", s.state.String()).Msg("intent not valid in current state")
}

func (s *Service) logDrop(msg signaling.Message) {
	s.log.Warn().
		Str("type", msg.Kind.String()).
		Str("peer", msg.Peer).
		Uint64("call_id", msg.CallID()).
		Str("state", s.state.String()).
		Msg("dropping signaling message for mismatched call or state")
}

func rejectReasonForIntent(kind IntentKind) signaling.RejectReason {
	switch kind {
	case IntentRejectBusy:
		return signaling.RejectBusy
	case IntentRejectTimeout:
		return signaling.RejectTimeout
	case IntentRejectDisabled:
		return signaling.RejectDisabled
	case IntentRejectOffHours:
		return signaling.RejectOffHours
	case IntentRejectUnknown:
		return signaling.RejectUnknown
	default:
		return signaling.RejectUnknown
	}
}

func rejectState(reason signaling.RejectReason) State {
	switch reason {
	case signaling.RejectBusy:
		return StateRejectedBusy
	case signaling.RejectTimeout:
		return StateRejectedTimeout
	case signaling.RejectDisabled:
		return StateRejectedDisabled
	case signaling.RejectOffHours:
		return StateRejectedOffHours
	case signaling.RejectUnknown:
		return StateRejectedUnknown
	default:
		return StateRejected
	}
}
