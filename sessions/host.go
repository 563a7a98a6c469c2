package sessions

import "context"

// SessionHost is the registry and per-session messaging backend the engine
// builds on. The memory host is the only implementation in this process
// model; session state does not survive a restart by design.
//
// Registry semantics the engine relies on:
//   - CreateSession inserts the record atomically; once it returns, any
//     concurrent GetSession for the same ID observes the record (no
//     stale-read window).
//   - DeleteSession removes the record atomically and tears down any live
//     subscriptions; it is idempotent and returns ErrSessionNotFound only
//     when the record was never present.
type SessionHost interface {
	// Metadata lifecycle.
	CreateSession(ctx context.Context, meta *SessionMetadata) error
	GetSession(ctx context.Context, sessionID string) (*SessionMetadata, error)
	MutateSession(ctx context.Context, sessionID string, fn func(*SessionMetadata) error) error
	DeleteSession(ctx context.Context, sessionID string) error

	// Messaging — ordered per session ID with resume via lastEventID.
	// PublishSession appends a message to the session's ordered log and
	// returns its event ID. SubscribeSession replays the log after
	// lastEventID ("" means tail only) and then live-tails until ctx ends,
	// the handler errors, or the session is deleted.
	PublishSession(ctx context.Context, sessionID string, data []byte) (eventID string, err error)
	SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler MessageHandlerFunction) error
}
