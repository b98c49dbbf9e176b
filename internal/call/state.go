package call

// State is the call session state. The declaration order is the total
// order used for monotonic progress checks.
type State int

const (
	StateIdle State = iota
	StateSendOffer
	StateReceivedOffer
	StateOutgoingRinging
	StateIncomingRinging
	StateSendAnswer
	StateReceivedAnswer
	StateInitializing
	StateCalling
	StateReconnecting
	StateEnded
	StateRemoteEnded
	StateRejected
	StateRejectedBusy
	StateRejectedTimeout
	StateRejectedDisabled
	StateRejectedOffHours
	StateRejectedUnknown
	StateMicrophoneDisabled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSendOffer:
		return "sendOffer"
	case StateReceivedOffer:
		return "receivedOffer"
	case StateOutgoingRinging:
		return "outgoingRinging"
	case StateIncomingRinging:
		return "incomingRinging"
	case StateSendAnswer:
		return "sendAnswer"
	case StateReceivedAnswer:
		return "receivedAnswer"
	case StateInitializing:
		return "initializing"
	case StateCalling:
		return "calling"
	case StateReconnecting:
		return "reconnecting"
	case StateEnded:
		return "ended"
	case StateRemoteEnded:
		return "remoteEnded"
	case StateRejected:
		return "rejected"
	case StateRejectedBusy:
		return "rejectedBusy"
	case StateRejectedTimeout:
		return "rejectedTimeout"
	case StateRejectedDisabled:
		return "rejectedDisabled"
	case StateRejectedOffHours:
		return "rejectedOffHours"
	case StateRejectedUnknown:
		return "rejectedUnknown"
	case StateMicrophoneDisabled:
		return "microphoneDisabled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s >= StateEnded
}

// Live reports whether a remote hangup is meaningful in this state
// (receivedOffer through reconnecting).
func (s State) Live() bool {
	return s >= StateReceivedOffer && s <= StateReconnecting
}

// ActiveSignaling reports whether inbound ICE candidates apply
// immediately (sendOffer through reconnecting, session fully accepted).
func (s State) ActiveSignaling() bool {
	switch s {
	case StateSendOffer, StateOutgoingRinging, StateSendAnswer,
		StateReceivedAnswer, StateInitializing, StateCalling, StateReconnecting:
		return true
	default:
		return false
	}
}

// TransmitsCandidates reports whether locally gathered candidates may be
// flushed to the wire. Pre-answer states (idle, receivedOffer,
// incomingRinging, sendAnswer) buffer without transmitting.
func (s State) TransmitsCandidates() bool {
	switch s {
	case StateSendOffer, StateOutgoingRinging, StateReceivedAnswer,
		StateInitializing, StateCalling, StateReconnecting:
		return true
	default:
		return false
	}
}
