package mcpservice

import (
	"context"

	"github.com/weatherwire/weatherwire/mcp"
	"github.com/weatherwire/weatherwire/sessions"
)

// ServerOption configures a concrete ServerCapabilities implementation.
type ServerOption func(*server)

type server struct {
	staticInfo         *mcp.ImplementationInfo
	staticProtocol     string
	staticInstructions *string
	staticToolsCap     ToolsCapability
	toolsProvider      func(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error)
}

// NewServer builds a ServerCapabilities from functional options.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets the static server info advertised during initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *server) { s.staticInfo = &info }
}

// WithPreferredProtocolVersion sets the protocol version the server negotiates to.
func WithPreferredProtocolVersion(version string) ServerOption {
	return func(s *server) { s.staticProtocol = version }
}

// WithInstructions sets static human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *server) { s.staticInstructions = &instr }
}

// WithToolsCapability wires a static ToolsCapability used for all sessions.
func WithToolsCapability(cap ToolsCapability) ServerOption {
	return func(s *server) { s.staticToolsCap = cap }
}

// WithToolsProvider wires a per-session tools capability provider.
func WithToolsProvider(fn func(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error)) ServerOption {
	return func(s *server) { s.toolsProvider = fn }
}

func (s *server) GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error) {
	if s.staticInfo != nil {
		return *s.staticInfo, nil
	}
	return mcp.ImplementationInfo{}, nil
}

func (s *server) GetPreferredProtocolVersion(ctx context.Context) (string, bool, error) {
	if s.staticProtocol != "" {
		return s.staticProtocol, true, nil
	}
	return "", false, nil
}

func (s *server) GetInstructions(ctx context.Context, session sessions.Session) (string, bool, error) {
	if s.staticInstructions != nil {
		return *s.staticInstructions, true, nil
	}
	return "", false, nil
}

func (s *server) GetToolsCapability(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error) {
	if s.toolsProvider != nil {
		return s.toolsProvider(ctx, session)
	}
	if s.staticToolsCap != nil {
		return s.staticToolsCap, true, nil
	}
	return nil, false, nil
}
