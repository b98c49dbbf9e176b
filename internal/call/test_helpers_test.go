package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/media"
	"github.com/vovakirdan/wirecall/internal/signaling"
	"github.com/vovakirdan/wirecall/internal/stats"
	"github.com/vovakirdan/wirecall/internal/store"
)

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return Event{}
}

func expectNoEvent(t *testing.T, ch <-chan Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				t.Fatalf("unexpected event kind %v", kind)
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func mustSent(t *testing.T, ch <-chan signaling.Message, kind signaling.Kind) signaling.Message {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case msg := <-ch:
			if msg.Kind == kind {
				return msg
			}
			t.Fatalf("expected outbound %v, got %v", kind, msg.Kind)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected outbound message %v not sent", kind)
	return signaling.Message{}
}

func expectNothingSent(t *testing.T, ch <-chan signaling.Message) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case msg := <-ch:
			t.Fatalf("unexpected outbound message %v", msg.Kind)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func waitState(t *testing.T, svc *Service, want State) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Status().State == want.String() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %q not reached, still %q", want, svc.Status().State)
}

type fakeSender struct {
	sent chan signaling.Message
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan signaling.Message, 32)}
}

func (f *fakeSender) SendOffer(_ context.Context, peer string, data signaling.OfferData) error {
	f.sent <- signaling.Message{Kind: signaling.KindOffer, Peer: peer, Offer: &data}
	return nil
}

func (f *fakeSender) SendAnswer(_ context.Context, peer string, data signaling.AnswerData) error {
	f.sent <- signaling.Message{Kind: signaling.KindAnswer, Peer: peer, Answer: &data}
	return nil
}

func (f *fakeSender) SendRinging(_ context.Context, peer string, data signaling.RingingData) error {
	f.sent <- signaling.Message{Kind: signaling.KindRinging, Peer: peer, Ringing: &data}
	return nil
}

func (f *fakeSender) SendHangup(_ context.Context, peer string, data signaling.HangupData) error {
	f.sent <- signaling.Message{Kind: signaling.KindHangup, Peer: peer, Hangup: &data}
	return nil
}

func (f *fakeSender) SendIceCandidates(_ context.Context, peer string, data signaling.CandidatesData) error {
	f.sent <- signaling.Message{Kind: signaling.KindIceCandidates, Peer: peer, Candidates: &data}
	return nil
}

type fakeMedia struct {
	events chan media.Event

	mu        sync.Mutex
	initiator bool
	applied   []media.SDPKind
	added     []signaling.Candidate
	videoOn   bool
	closed    bool
}

func newFakeMedia(initiator bool) *fakeMedia {
	return &fakeMedia{events: make(chan media.Event, 32), initiator: initiator}
}

func (f *fakeMedia) CreateOffer(context.Context) (string, error)  { return "v=0\r\noffer", nil }
func (f *fakeMedia) CreateAnswer(context.Context) (string, error) { return "v=0\r\nanswer", nil }

func (f *fakeMedia) ApplyRemoteDescription(_ context.Context, kind media.SDPKind, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, kind)
	return nil
}

func (f *fakeMedia) AddRemoteCandidate(c signaling.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, c)
}

func (f *fakeMedia) RemoveRemoteCandidates([]signaling.Candidate) {}

func (f *fakeMedia) Mute()             {}
func (f *fakeMedia) Unmute()           {}
func (f *fakeMedia) SetSpeaker(_ bool) {}

func (f *fakeMedia) StartLocalVideo(config.VideoProfile, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoOn = true
	return nil
}

func (f *fakeMedia) StopLocalVideo() {}

func (f *fakeMedia) SetOutgoingVideoLimits(config.VideoProfile) {}

func (f *fakeMedia) Events() <-chan media.Event { return f.events }

func (f *fakeMedia) Close(context.Context) *stats.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMedia) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeMedia) appliedKinds() []media.SDPKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.SDPKind(nil), f.applied...)
}

func (f *fakeMedia) addedCandidates() []signaling.Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signaling.Candidate(nil), f.added...)
}

type fakeEntities struct {
	records chan store.CallMessage
	unread  chan string
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{
		records: make(chan store.CallMessage, 16),
		unread:  make(chan string, 16),
	}
}

func (f *fakeEntities) AppendCallMessage(_ context.Context, msg *store.CallMessage) error {
	f.records <- *msg
	return nil
}

func (f *fakeEntities) IncrementUnread(_ context.Context, peer string) error {
	f.unread <- peer
	return nil
}

func mustRecord(t *testing.T, ch <-chan store.CallMessage, kind store.CallMessageKind) store.CallMessage {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case rec := <-ch:
			if rec.Kind == kind {
				return rec
			}
			t.Fatalf("expected %q record, got %q", kind, rec.Kind)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected %q call record not written", kind)
	return store.CallMessage{}
}

type fixture struct {
	svc    *Service
	clk    *clock.Mock
	sender *fakeSender
	ents   *fakeEntities
	cfg    config.Config
	cancel context.CancelFunc

	mu        sync.Mutex
	sessions  []*fakeMedia
	permitted bool
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}

	fx := &fixture{
		clk:       clock.NewMock(),
		sender:    newFakeSender(),
		ents:      newFakeEntities(),
		cfg:       cfg,
		permitted: true,
	}

	logger := zerolog.Nop()
	fx.svc = NewService(Options{
		Logger:   &logger,
		Clock:    fx.clk,
		Config:   cfg,
		Sender:   fx.sender,
		Entities: fx.ents,
		Permission: PermissionFunc(func(context.Context) (bool, error) {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			return fx.permitted, nil
		}),
		Media: func(initiator, _ bool) (MediaSession, error) {
			m := newFakeMedia(initiator)
			fx.mu.Lock()
			fx.sessions = append(fx.sessions, m)
			fx.mu.Unlock()
			return m, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	fx.cancel = cancel
	t.Cleanup(cancel)
	go fx.svc.Run(ctx)
	return fx
}

func (fx *fixture) lastMedia(t *testing.T) *fakeMedia {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fx.mu.Lock()
		n := len(fx.sessions)
		var m *fakeMedia
		if n > 0 {
			m = fx.sessions[n-1]
		}
		fx.mu.Unlock()
		if m != nil {
			return m
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no media session was created")
	return nil
}

func (fx *fixture) setPermitted(ok bool) {
	fx.mu.Lock()
	fx.permitted = ok
	fx.mu.Unlock()
}

func (fx *fixture) submit(t *testing.T, in Intent) {
	t.Helper()

	done := make(chan struct{})
	in.Done = func() { close(done) }
	fx.svc.Submit(&in)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("intent %v not processed", in.Kind)
	}
}

func (fx *fixture) deliver(t *testing.T, msg signaling.Message) {
	t.Helper()

	done := make(chan struct{})
	fx.svc.HandleMessage(msg, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("signaling message %v not processed", msg.Kind)
	}
}

func offerMsg(peer string, callID uint64, video bool) signaling.Message {
	return signaling.Message{
		Kind: signaling.KindOffer,
		Peer: peer,
		Offer: &signaling.OfferData{
			CallID:         callID,
			SDP:            "v=0\r\nremote offer",
			VideoAvailable: video,
		},
	}
}

func acceptAnswerMsg(peer string, callID uint64) signaling.Message {
	sdp := "v=0\r\nremote answer"
	return signaling.Message{
		Kind: signaling.KindAnswer,
		Peer: peer,
		Answer: &signaling.AnswerData{
			CallID: callID,
			Accept: true,
			SDP:    &sdp,
		},
	}
}

func hangupMsg(peer string, callID uint64) signaling.Message {
	return signaling.Message{
		Kind:   signaling.KindHangup,
		Peer:   peer,
		Hangup: &signaling.HangupData{CallID: callID},
	}
}
