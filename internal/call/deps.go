package call

import (
	"context"
	"time"

	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/media"
	"github.com/vovakirdan/wirecall/internal/signaling"
	"github.com/vovakirdan/wirecall/internal/stats"
	"github.com/vovakirdan/wirecall/internal/store"
)

// MediaSession is the one-call transport wrapper the state machine
// drives. The production implementation is media.Client.
type MediaSession interface {
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context) (string, error)
	ApplyRemoteDescription(ctx context.Context, kind media.SDPKind, sdp string) error
	AddRemoteCandidate(candidate signaling.Candidate)
	RemoveRemoteCandidates(candidates []signaling.Candidate)
	Mute()
	Unmute()
	SetSpeaker(on bool)
	StartLocalVideo(profile config.VideoProfile, useBackCamera bool) error
	StopLocalVideo()
	SetOutgoingVideoLimits(profile config.VideoProfile)
	Events() <-chan media.Event
	// Close shuts the session down and returns the final stats snapshot,
	// or nil when none could be taken.
	Close(ctx context.Context) *stats.Snapshot
}

// MediaFactory builds the media session for one call attempt.
type MediaFactory func(initiator, videoNegotiated bool) (MediaSession, error)

// EntityManager is the persistence boundary the core writes call system
// messages through. store.Store satisfies it.
type EntityManager interface {
	AppendCallMessage(ctx context.Context, msg *store.CallMessage) error
	IncrementUnread(ctx context.Context, peer string) error
}

// MicrophonePermission models the host's microphone permission prompt.
// The request may block on user interaction.
type MicrophonePermission interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

// PermissionFunc adapts a function to MicrophonePermission.
type PermissionFunc func(ctx context.Context) (bool, error)

func (f PermissionFunc) RequestMicrophone(ctx context.Context) (bool, error) { return f(ctx) }

// Recorder receives operational metrics. metrics.Set satisfies it.
type Recorder interface {
	CallStarted(outgoing bool)
	CallConnected()
	CallEnded(result string, duration time.Duration)
	ObserveLoss(kind string, pct float64)
	ObserveBitrate(kind, direction string, bps float64)
}
