package call

// IntentKind describes what the user wants to do.
type IntentKind int

const (
	// IntentCall starts an outgoing audio call.
	IntentCall IntentKind = iota
	// IntentCallVideo starts an outgoing video call.
	IntentCallVideo
	// IntentAccept answers the ringing incoming call.
	IntentAccept
	// IntentReject declines the incoming call.
	IntentReject
	// IntentRejectBusy declines because another call is active.
	IntentRejectBusy
	// IntentRejectTimeout declines after the incoming timer fired.
	IntentRejectTimeout
	// IntentRejectDisabled declines because calling is disabled locally.
	IntentRejectDisabled
	// IntentRejectOffHours declines because of the do-not-disturb window.
	IntentRejectOffHours
	// IntentRejectUnknown declines for an unclassified reason.
	IntentRejectUnknown
	// IntentEnd hangs up the current call.
	IntentEnd
	// IntentMuteAudio / IntentUnmuteAudio toggle the local microphone.
	IntentMuteAudio
	IntentUnmuteAudio
	// IntentSpeakerOn / IntentSpeakerOff toggle the loudspeaker route.
	IntentSpeakerOn
	IntentSpeakerOff
	// IntentShowCallScreen / IntentHideCallScreen track UI visibility.
	IntentShowCallScreen
	IntentHideCallScreen
)

func (k IntentKind) String() string {
	switch k {
	case IntentCall:
		return "call"
	case IntentCallVideo:
		return "callWithVideo"
	case IntentAccept:
		return "accept"
	case IntentReject:
		return "reject"
	case IntentRejectBusy:
		return "rejectBusy"
	case IntentRejectTimeout:
		return "rejectTimeout"
	case IntentRejectDisabled:
		return "rejectDisabled"
	case IntentRejectOffHours:
		return "rejectOffHours"
	case IntentRejectUnknown:
		return "rejectUnknown"
	case IntentEnd:
		return "end"
	case IntentMuteAudio:
		return "muteAudio"
	case IntentUnmuteAudio:
		return "unmuteAudio"
	case IntentSpeakerOn:
		return "speakerOn"
	case IntentSpeakerOff:
		return "speakerOff"
	case IntentShowCallScreen:
		return "showCallScreen"
	case IntentHideCallScreen:
		return "hideCallScreen"
	default:
		return "unknown"
	}
}

// Intent is one discrete user action. Done, when non-nil, is invoked
// exactly once after processing finishes, whether or not the intent was
// valid in the current state.
type Intent struct {
	Kind IntentKind

	// Peer targets call initiation; Peer+CallID target reject actions,
	// which may refer to a session that is no longer current.
	Peer   string
	CallID uint64

	Done func()
}
