package call

// Session identifies one call attempt. It exists only while the state
// machine is not idle and is immutable past the offer stage except for
// the negotiated-video flag, which can flip on renegotiation.
type Session struct {
	CallID          uint64
	Peer            string // opaque stable contact id
	Initiator       bool
	VideoNegotiated bool

	// offerSDP holds the remote offer between receivedOffer and accept.
	offerSDP string
}

// Matches reports whether an inbound message belongs to this session.
func (s *Session) Matches(peer string, callID uint64) bool {
	return s != nil && s.Peer == peer && s.CallID == callID
}
