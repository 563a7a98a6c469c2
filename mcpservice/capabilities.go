package mcpservice

import (
	"context"
	"strconv"

	"github.com/weatherwire/weatherwire/mcp"
	"github.com/weatherwire/weatherwire/sessions"
)

// ServerCapabilities is the engine's view of what this server offers. The
// tools capability is the only operation surface; info, protocol preference,
// and instructions feed the initialize handshake.
type ServerCapabilities interface {
	GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)
	GetPreferredProtocolVersion(ctx context.Context) (version string, ok bool, err error)
	GetInstructions(ctx context.Context, session sessions.Session) (instructions string, ok bool, err error)
	GetToolsCapability(ctx context.Context, session sessions.Session) (cap ToolsCapability, ok bool, err error)
}

// ToolsCapability exposes tool listing and dispatch for a session.
type ToolsCapability interface {
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

	// GetListChangedCapability reports whether the capability can notify
	// sessions when the tool set changes.
	GetListChangedCapability(ctx context.Context, session sessions.Session) (ToolListChangedCapability, bool, error)
}

// NotifyToolsListChangedFunc delivers a tools/list_changed signal to a session.
type NotifyToolsListChangedFunc func(ctx context.Context, session sessions.Session)

// ToolListChangedCapability registers a per-session change listener.
type ToolListChangedCapability interface {
	Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (bool, error)
}

// Page is one page of a paginated listing. NextCursor is nil on the last page.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// NewPage builds a page over items.
func NewPage[T any](items []T) Page[T] {
	return Page[T]{Items: items}
}

// NewPageWithCursor builds a page that has a continuation cursor.
func NewPageWithCursor[T any](items []T, next string) Page[T] {
	return Page[T]{Items: items, NextCursor: &next}
}

// parseCursor interprets a cursor as an integer offset; malformed or absent
// cursors restart from zero.
func parseCursor(cursor *string) int {
	if cursor == nil {
		return 0
	}
	n, err := strconv.Atoi(*cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
