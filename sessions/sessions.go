package sessions

import (
	"context"
	"errors"
)

// SessionState tracks where a session is in its lifecycle. A session is
// created in StatePending by the initialize handshake, becomes StateOpen once
// the client confirms with notifications/initialized, and is StateClosed once
// torn down. Closed is terminal.
type SessionState string

const (
	SessionStatePending SessionState = "pending"
	SessionStateOpen    SessionState = "open"
	SessionStateClosed  SessionState = "closed"
)

var (
	// ErrSessionNotFound is returned when a session ID does not resolve to a
	// live registry entry.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by a host when creating a session whose ID
	// is already registered. IDs are generated, so this indicates a bug.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionClosed is returned when a message arrives on a handle whose
	// session has been torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionNotReady is returned when an operation request arrives before
	// the initialization handshake has completed.
	ErrSessionNotReady = errors.New("session not ready")
)

// Session is the read-only view of a negotiated session exposed to
// capability implementations. Implementations must be safe for concurrent use.
type Session interface {
	SessionID() string
	// ProtocolVersion is the negotiated protocol version baked into the session.
	ProtocolVersion() string
	State() SessionState
}

// MessageHandlerFunction handles ordered messages for a session stream.
// If the handler returns an error, the subscription terminates with that error.
type MessageHandlerFunction func(ctx context.Context, msgID string, msg []byte) error
