package call

// EventKind is a notification the call core emits to its single consumer
// (the layer owning UI, tones and platform call integration).
type EventKind int

const (
	// EventStateChanged reports every state transition.
	EventStateChanged EventKind = iota
	// EventPresentCallScreen asks the UI to show the call screen.
	EventPresentCallScreen
	// EventDismissCallScreen asks the UI to drop the call screen.
	EventDismissCallScreen
	// EventDurationTick carries the running call duration in seconds.
	EventDurationTick
	// EventIncomingReported mirrors reportIncoming on the platform layer.
	EventIncomingReported
	// EventAccepted mirrors callAccepted on the platform layer.
	EventAccepted
	// EventConnected mirrors callConnected on the platform layer.
	EventConnected
	// EventEnded mirrors endCall on the platform layer.
	EventEnded
	// EventRejected mirrors rejectCall on the platform layer, for both
	// locally issued and peer-issued rejections.
	EventRejected
	// EventAnswerFailed mirrors answerFailed on the platform layer.
	EventAnswerFailed
	// EventTimedOut mirrors timeoutCall on the platform layer.
	EventTimedOut
	// EventAlert carries a user-visible failure message.
	EventAlert
	// EventTone asks for a notification tone to play.
	EventTone
	// EventMuteChanged reports the local mute flag.
	EventMuteChanged
	// EventPeerMuteChanged reports the peer's in-band mute announcement.
	EventPeerMuteChanged
	// EventSpeakerChanged reports the loudspeaker route flag.
	EventSpeakerChanged
	// EventReceivingVideoChanged reports remote video arrival flips.
	EventReceivingVideoChanged
	// EventCellularWarning asks the UI to show the cellular-call warning.
	EventCellularWarning
)

// Alert codes surfaced with EventAlert.
const (
	AlertMicrophonePermission = "microphone_permission"
	AlertOfferFailed          = "offer_failed"
	AlertAnswerFailed         = "answer_failed"
	AlertConnectionLost       = "connection_lost"
	AlertPeerUnreachable      = "peer_unreachable"
)

// Tones requested with EventTone.
const (
	ToneBusy   = "busy"
	ToneEnded  = "ended"
	ToneFailed = "failed"
)

// Event is one notification to the consumer.
type Event struct {
	Kind EventKind

	State   State
	Session Session // copy; valid when a session exists at emit time
	Peer    string
	Seconds int
	Alert   string
	Tone    string
	Flag    bool
}
