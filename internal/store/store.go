package store

import (
	"context"
	"time"
)

// CallMessageKind classifies a call system message.
type CallMessageKind string

const (
	CallMessageEnded    CallMessageKind = "ended"
	CallMessageMissed   CallMessageKind = "missed"
	CallMessageRejected CallMessageKind = "rejected"
)

// CallMessage is one "call ended / missed / rejected" system message
// appended to a conversation.
type CallMessage struct {
	ID              int64
	Peer            string
	Kind            CallMessageKind
	Reason          string // reject reason, empty otherwise
	DurationSeconds int64  // 0 unless the call connected
	Initiator       bool
	CreatedAt       time.Time
}

// Store persists call system messages and unread counters. The call core
// does not know the storage schema; it only appends records through this
// boundary.
type Store interface {
	AppendCallMessage(ctx context.Context, msg *CallMessage) error
	IncrementUnread(ctx context.Context, peer string) error
	UnreadCount(ctx context.Context, peer string) (int64, error)
	RecentCallMessages(ctx context.Context, peer string, limit int) ([]CallMessage, error)
	Close() error
}
