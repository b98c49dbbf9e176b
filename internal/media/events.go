package media

import (
	"github.com/vovakirdan/wirecall/internal/signaling"
	"github.com/vovakirdan/wirecall/internal/stats"
)

// ConnState is the observed transport connection state.
type ConnState int

const (
	ConnNew ConnState = iota
	ConnChecking
	ConnConnected
	ConnCompleted
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnNew:
		return "new"
	case ConnChecking:
		return "checking"
	case ConnConnected:
		return "connected"
	case ConnCompleted:
		return "completed"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind discriminates session events raised to the owner.
type EventKind int

const (
	// EventConnectionState reports a transport connection state change.
	EventConnectionState EventKind = iota
	// EventLocalCandidate reports a newly gathered local ICE candidate.
	EventLocalCandidate
	// EventCandidatesRemoved reports local candidates withdrawn by the engine.
	EventCandidatesRemoved
	// EventChannelData reports inbound auxiliary data-channel payloads.
	EventChannelData
	// EventMuteChanged reports a local mute flag flip.
	EventMuteChanged
	// EventSpeakerChanged reports a completed speaker route change.
	EventSpeakerChanged
	// EventReceivingVideoChanged reports whether remote video frames are arriving.
	EventReceivingVideoChanged
	// EventCellularWarning signals the owner to surface a cellular-call warning.
	EventCellularWarning
	// EventStats delivers a statistics snapshot from one of the polls.
	EventStats
)

// Event is pushed to the single consumer owning the session.
type Event struct {
	Kind EventKind

	ConnState  ConnState
	Candidate  signaling.Candidate
	Candidates []signaling.Candidate
	Data       []byte
	Flag       bool
	Snapshot   *stats.Snapshot
	Final      bool // set on the teardown stats poll
}
