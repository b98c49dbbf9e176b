package media

import (
	"github.com/pion/webrtc/v4"

	"github.com/vovakirdan/wirecall/internal/config"
)

// AudioRouter reconfigures the platform audio route. Implementations talk
// to the host audio stack; calls are serialized by the session's audio
// queue, never invoked concurrently.
type AudioRouter interface {
	SetSpeaker(on bool) error
}

// VideoSource feeds captured frames into a local video track.
type VideoSource interface {
	Start(track *webrtc.TrackLocalStaticSample, profile config.VideoProfile, useBackCamera bool) error
	SetLimits(profile config.VideoProfile)
	Stop()
}

// VideoRenderer consumes a remote video track. The session hands the
// track over once and the renderer owns reading from it until stopped.
type VideoRenderer interface {
	Render(track *webrtc.TrackRemote)
	Stop()
}

// NopAudioRouter satisfies AudioRouter for hosts without routable audio.
type NopAudioRouter struct{}

func (NopAudioRouter) SetSpeaker(bool) error { return nil }
