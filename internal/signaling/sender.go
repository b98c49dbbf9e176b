package signaling

import "context"

// Sender is the outbound signaling boundary. Implementations accept a
// message for delivery and return once it is queued; delivery retries
// are the transport's responsibility, not the caller's.
type Sender interface {
	SendOffer(ctx context.Context, peer string, data OfferData) error
	SendAnswer(ctx context.Context, peer string, data AnswerData) error
	SendRinging(ctx context.Context, peer string, data RingingData) error
	SendHangup(ctx context.Context, peer string, data HangupData) error
	SendIceCandidates(ctx context.Context, peer string, data CandidatesData) error
}

// Handler consumes one inbound message. done must be invoked exactly once
// when processing finishes; the transport withholds the next message for
// the same connection until then.
type Handler func(msg Message, done func())
