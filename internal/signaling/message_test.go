package signaling

import (
	"encoding/json"
	"testing"
)

func TestDecodeOffer(t *testing.T) {
	env := Envelope{
		Type: TypeOffer,
		From: "alice",
		Data: json.RawMessage(`{"callId":42,"sdp":"v=0","videoAvailable":true}`),
	}

	msg, err := Decode(env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind != KindOffer || msg.Peer != "alice" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Offer.CallID != 42 || msg.Offer.SDP != "v=0" || !msg.Offer.VideoAvailable {
		t.Fatalf("unexpected offer payload: %+v", msg.Offer)
	}
	if msg.CallID() != 42 {
		t.Fatalf("CallID() = %d, want 42", msg.CallID())
	}
}

func TestDecodeRejectAnswer(t *testing.T) {
	env := Envelope{
		Type: TypeAnswer,
		From: "bob",
		Data: json.RawMessage(`{"callId":7,"accept":false,"rejectReason":"busy"}`),
	}

	msg, err := Decode(env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Answer.Accept {
		t.Fatal("expected reject answer")
	}
	if msg.Answer.RejectReason != RejectBusy {
		t.Fatalf("reason = %q, want busy", msg.Answer.RejectReason)
	}
	if msg.Answer.SDP != nil {
		t.Fatal("reject answer must carry no sdp")
	}
}

func TestDecodeCandidatesWithRemovedFlag(t *testing.T) {
	env := Envelope{
		Type: TypeIceCandidates,
		From: "bob",
		Data: json.RawMessage(`{"callId":7,"candidates":[{"candidate":"candidate:1 1 udp 2 10.0.0.5 50000 typ host","sdpMid":"0"}],"removed":true}`),
	}

	msg, err := Decode(env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !msg.Candidates.Removed {
		t.Fatal("removed flag must survive decoding")
	}
	if len(msg.Candidates.Candidates) != 1 || *msg.Candidates.Candidates[0].SDPMid != "0" {
		t.Fatalf("unexpected candidates: %+v", msg.Candidates)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode(Envelope{Type: "call-transfer", Data: json.RawMessage(`{}`)}); err == nil {
		t.Fatal("unknown type must fail to decode")
	}
}

func TestEncodeAddressesEnvelope(t *testing.T) {
	sdp := "v=0"
	env, err := Encode(Message{
		Kind: KindAnswer,
		Peer: "alice",
		Answer: &AnswerData{
			CallID: 9,
			Accept: true,
			SDP:    &sdp,
		},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if env.Type != TypeAnswer || env.To != "alice" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.ID == "" {
		t.Fatal("envelope must carry a message id")
	}

	// The envelope round-trips through the decoder.
	env.From = env.To
	msg, err := Decode(env)
	if err != nil {
		t.Fatalf("decode encoded envelope: %v", err)
	}
	if msg.Answer.CallID != 9 || !msg.Answer.Accept || *msg.Answer.SDP != "v=0" {
		t.Fatalf("round trip mismatch: %+v", msg.Answer)
	}
}
