package sessions

import "time"

// CapabilitySet captures the immutable capability surface the client declared
// at session creation. Booleans keep it cheap to serialize and compare.
type CapabilitySet struct {
	Roots            bool `json:"roots,omitempty"`
	RootsListChanged bool `json:"roots_list_changed,omitempty"`
	Sampling         bool `json:"sampling,omitempty"`
	Elicitation      bool `json:"elicitation,omitempty"`
}

// ClientInfo records optional client identity details supplied at
// initialization, kept for observability. All fields are optional.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// SessionMetadata is the authoritative registry record for a session.
// SessionID, ProtocolVersion, Client, and Capabilities are immutable after
// the creation handshake; State advances Pending -> Open and is never wound
// back. Timestamps are wall-clock UTC.
type SessionMetadata struct {
	SessionID       string        `json:"session_id"`
	ProtocolVersion string        `json:"protocol_version,omitempty"`
	Client          ClientInfo    `json:"client,omitempty"`
	Capabilities    CapabilitySet `json:"capabilities,omitempty"`
	State           SessionState  `json:"state"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastAccess time.Time `json:"last_access"`
}
