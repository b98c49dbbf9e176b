package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is the wire frame for every signaling message.
// Data carries a type-specific payload.
type Envelope struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	From string          `json:"from,omitempty"`
	To   string          `json:"to,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	TypeOffer         = "call-offer"
	TypeAnswer        = "call-answer"
	TypeRinging       = "call-ringing"
	TypeHangup        = "call-hangup"
	TypeIceCandidates = "call-ice-candidates"
)

// RejectReason explains why an answer rejected the call.
type RejectReason string

const (
	RejectNone     RejectReason = ""
	RejectBusy     RejectReason = "busy"
	RejectTimeout  RejectReason = "timeout"
	RejectDisabled RejectReason = "disabled"
	RejectOffHours RejectReason = "offHours"
	RejectUnknown  RejectReason = "unknown"
)

// Candidate is one ICE candidate as carried on the wire.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// OfferData starts a call attempt.
type OfferData struct {
	CallID         uint64 `json:"callId"`
	SDP            string `json:"sdp"`
	VideoAvailable bool   `json:"videoAvailable"`
}

// AnswerData accepts or rejects an offer. SDP is nil on reject.
type AnswerData struct {
	CallID         uint64       `json:"callId"`
	Accept         bool         `json:"accept"`
	SDP            *string      `json:"sdp,omitempty"`
	RejectReason   RejectReason `json:"rejectReason,omitempty"`
	VideoAvailable bool         `json:"videoAvailable"`
}

// RingingData confirms an offer reached the callee.
type RingingData struct {
	CallID uint64 `json:"callId"`
}

// HangupData terminates a call.
type HangupData struct {
	CallID uint64 `json:"callId"`
}

// CandidatesData carries a batch of ICE candidates.
// Removed is accepted for wire compatibility; its candidate-removal
// effect is intentionally never applied (non-standard extension).
type CandidatesData struct {
	CallID     uint64      `json:"callId"`
	Candidates []Candidate `json:"candidates"`
	Removed    bool        `json:"removed,omitempty"`
}

// Kind discriminates the decoded message union.
type Kind int

const (
	KindOffer Kind = iota
	KindAnswer
	KindRinging
	KindHangup
	KindIceCandidates
)

func (k Kind) String() string {
	switch k {
	case KindOffer:
		return TypeOffer
	case KindAnswer:
		return TypeAnswer
	case KindRinging:
		return TypeRinging
	case KindHangup:
		return TypeHangup
	case KindIceCandidates:
		return TypeIceCandidates
	default:
		return "unknown"
	}
}

// Message is a decoded signaling message. Exactly one payload pointer is
// non-nil, matching Kind. Peer is the remote identity the message is from
// (inbound) or addressed to (outbound).
type Message struct {
	Kind       Kind
	Peer       string
	Offer      *OfferData
	Answer     *AnswerData
	Ringing    *RingingData
	Hangup     *HangupData
	Candidates *CandidatesData
}

// CallID returns the call the message belongs to.
func (m *Message) CallID() uint64 {
	switch m.Kind {
	case KindOffer:
		return m.Offer.CallID
	case KindAnswer:
		return m.Answer.CallID
	case KindRinging:
		return m.Ringing.CallID
	case KindHangup:
		return m.Hangup.CallID
	case KindIceCandidates:
		return m.Candidates.CallID
	default:
		return 0
	}
}

// Decode parses an envelope into a typed message.
func Decode(env Envelope) (Message, error) {
	msg := Message{Peer: env.From}
	var err error
	switch env.Type {
	case TypeOffer:
		msg.Kind = KindOffer
		msg.Offer = &OfferData{}
		err = json.Unmarshal(env.Data, msg.Offer)
	case TypeAnswer:
		msg.Kind = KindAnswer
		msg.Answer = &AnswerData{}
		err = json.Unmarshal(env.Data, msg.Answer)
	case TypeRinging:
		msg.Kind = KindRinging
		msg.Ringing = &RingingData{}
		err = json.Unmarshal(env.Data, msg.Ringing)
	case TypeHangup:
		msg.Kind = KindHangup
		msg.Hangup = &HangupData{}
		err = json.Unmarshal(env.Data, msg.Hangup)
	case TypeIceCandidates:
		msg.Kind = KindIceCandidates
		msg.Candidates = &CandidatesData{}
		err = json.Unmarshal(env.Data, msg.Candidates)
	default:
		return msg, fmt.Errorf("unknown signaling type %q", env.Type)
	}
	if err != nil {
		return msg, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}

// Encode wraps a typed message into a wire envelope addressed to msg.Peer.
func Encode(msg Message) (Envelope, error) {
	var (
		payload any
	)
	switch msg.Kind {
	case KindOffer:
		payload = msg.Offer
	case KindAnswer:
		payload = msg.Answer
	case KindRinging:
		payload = msg.Ringing
	case KindHangup:
		payload = msg.Hangup
	case KindIceCandidates:
		payload = msg.Candidates
	default:
		return Envelope{}, fmt.Errorf("unknown message kind %d", msg.Kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Kind, err)
	}
	return Envelope{
		ID:   uuid.New().String(),
		Type: msg.Kind.String(),
		To:   msg.Peer,
		Data: data,
	}, nil
}
