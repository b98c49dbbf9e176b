package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirecall/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_messages (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	peer             TEXT NOT NULL,
	kind             TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	initiator        BOOLEAN NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_call_messages_peer ON call_messages(peer, created_at);

CREATE TABLE IF NOT EXISTS unread_counts (
	peer  TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendCallMessage inserts one call system message.
func (s *SQLiteStore) AppendCallMessage(ctx context.Context, msg *store.CallMessage) error {
	query := `
		INSERT INTO call_messages (peer, kind, reason, duration_seconds, initiator)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.Peer, string(msg.Kind), msg.Reason, msg.DurationSeconds, msg.Initiator)
	if err != nil {
		return fmt.Errorf("insert call message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// IncrementUnread bumps the unread counter for a peer.
func (s *SQLiteStore) IncrementUnread(ctx context.Context, peer string) error {
	query := `
		INSERT INTO unread_counts (peer, count) VALUES (?, 1)
		ON CONFLICT(peer) DO UPDATE SET count = count + 1
	`
	if _, err := s.db.ExecContext(ctx, query, peer); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// UnreadCount returns the unread counter for a peer, zero if absent.
func (s *SQLiteStore) UnreadCount(ctx context.Context, peer string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT count FROM unread_counts WHERE peer = ?`, peer).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query unread: %w", err)
	}
	return count, nil
}

// RecentCallMessages returns the newest call messages for a peer.
func (s *SQLiteStore) RecentCallMessages(ctx context.Context, peer string, limit int) ([]store.CallMessage, error) {
	query := `
		SELECT id, peer, kind, reason, duration_seconds, initiator, created_at
		FROM call_messages WHERE peer = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, peer, limit)
	if err != nil {
		return nil, fmt.Errorf("query call messages: %w", err)
	}
	defer rows.Close()

	var out []store.CallMessage
	for rows.Next() {
		var m store.CallMessage
		var kind string
		if err := rows.Scan(&m.ID, &m.Peer, &kind, &m.Reason, &m.DurationSeconds, &m.Initiator, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call message: %w", err)
		}
		m.Kind = store.CallMessageKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}
