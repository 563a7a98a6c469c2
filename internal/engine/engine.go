package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weatherwire/weatherwire/internal/jsonrpc"
	"github.com/weatherwire/weatherwire/internal/logctx"
	"github.com/weatherwire/weatherwire/mcp"
	"github.com/weatherwire/weatherwire/mcpservice"
	"github.com/weatherwire/weatherwire/sessions"
)

// Engine binds the session registry to the server capabilities. It owns
// session lifecycle (create, open, close) and dispatches JSON-RPC messages to
// the appropriate capability, keeping wire concerns out of both layers.
type Engine struct {
	host sessions.SessionHost
	srv  mcpservice.ServerCapabilities
	log  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine constructs an Engine over the given host and capabilities.
func NewEngine(host sessions.SessionHost, srv mcpservice.ServerCapabilities, opts ...Option) *Engine {
	e := &Engine{host: host, srv: srv, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sessionHandle is an immutable snapshot view over registry metadata. Holders
// keep working off their snapshot even if the session is deleted underneath;
// the next lookup observes the deletion.
type sessionHandle struct {
	meta sessions.SessionMetadata
}

var _ sessions.Session = (*sessionHandle)(nil)

func (h *sessionHandle) SessionID() string            { return h.meta.SessionID }
func (h *sessionHandle) ProtocolVersion() string      { return h.meta.ProtocolVersion }
func (h *sessionHandle) State() sessions.SessionState { return h.meta.State }

// InitializeSession creates a pending session for an initialize request and
// returns the handshake result. The session is registered before this
// returns, so its ID resolves for any subsequent request.
func (e *Engine) InitializeSession(ctx context.Context, req *mcp.InitializeRequest) (*mcp.InitializeResult, sessions.Session, error) {
	version := e.negotiateVersion(ctx, req.ProtocolVersion)

	now := time.Now().UTC()
	meta := &sessions.SessionMetadata{
		SessionID:       uuid.NewString(),
		ProtocolVersion: version,
		Client: sessions.ClientInfo{
			Name:    req.ClientInfo.Name,
			Version: req.ClientInfo.Version,
		},
		Capabilities: sessions.CapabilitySet{
			Roots:            req.Capabilities.Roots != nil,
			RootsListChanged: req.Capabilities.Roots != nil && req.Capabilities.Roots.ListChanged,
			Sampling:         req.Capabilities.Sampling != nil,
			Elicitation:      req.Capabilities.Elicitation != nil,
		},
		State:      sessions.SessionStatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastAccess: now,
	}

	if err := e.host.CreateSession(ctx, meta); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	sess := &sessionHandle{meta: *meta}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.SessionID(),
		ProtocolVersion: sess.ProtocolVersion(),
		State:           sess.State(),
	})

	info, err := e.srv.GetServerInfo(ctx, sess)
	if err != nil {
		return nil, nil, fmt.Errorf("server info: %w", err)
	}

	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      info,
	}

	if instructions, ok, err := e.srv.GetInstructions(ctx, sess); err == nil && ok {
		res.Instructions = instructions
	}

	if tc, ok, err := e.srv.GetToolsCapability(ctx, sess); err == nil && ok {
		listChanged := false
		if _, lcOK, lcErr := tc.GetListChangedCapability(ctx, sess); lcErr == nil && lcOK {
			listChanged = true
		}
		res.Capabilities.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{ListChanged: listChanged}
	}
	res.Capabilities.Logging = &struct{}{}

	e.log.InfoContext(ctx, "session.initialized",
		slog.String("client_name", req.ClientInfo.Name),
		slog.String("protocol_version", version))
	return res, sess, nil
}

func (e *Engine) negotiateVersion(ctx context.Context, requested string) string {
	if preferred, ok, err := e.srv.GetPreferredProtocolVersion(ctx); err == nil && ok {
		return preferred
	}
	if requested != "" {
		return requested
	}
	return mcp.LatestProtocolVersion
}

// LoadSession resolves a session ID to a live handle. Returns
// sessions.ErrSessionNotFound for unknown or already-deleted sessions.
func (e *Engine) LoadSession(ctx context.Context, sessionID string) (sessions.Session, error) {
	meta, err := e.host.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &sessionHandle{meta: *meta}, nil
}

// OpenSession advances a pending session to open. It is idempotent for
// already-open sessions.
func (e *Engine) OpenSession(ctx context.Context, sessionID string) error {
	return e.host.MutateSession(ctx, sessionID, func(meta *sessions.SessionMetadata) error {
		switch meta.State {
		case sessions.SessionStatePending:
			meta.State = sessions.SessionStateOpen
			return nil
		case sessions.SessionStateOpen:
			return nil
		default:
			return sessions.ErrSessionClosed
		}
	})
}

// DeleteSession tears the session down: the registry entry is removed and
// any live event streams terminate. In-flight requests holding a handle run
// to completion.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.host.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	e.log.InfoContext(ctx, "session.deleted", slog.String("session_id", sessionID))
	return nil
}

// HandleRequest dispatches one JSON-RPC request on a session and always
// yields a response envelope; failures surface as JSON-RPC error objects
// correlated to the request ID.
func (e *Engine) HandleRequest(ctx context.Context, sess sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   "request",
	})
	log := e.log.With(slog.String("method", req.Method))
	start := time.Now()

	var res *jsonrpc.Response
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		// A second initialize on a live session is a handshake violation.
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil)
	case mcp.PingMethod:
		res = e.handlePing(ctx, req)
	case mcp.ToolsListMethod:
		res = e.guardOpen(ctx, sess, req, e.handleToolsList)
	case mcp.ToolsCallMethod:
		res = e.guardOpen(ctx, sess, req, e.handleToolCall)
	default:
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}

	log.InfoContext(ctx, "rpc.request.handled",
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		slog.Bool("is_error", res.Error != nil))
	return res
}

type requestHandler func(ctx context.Context, sess sessions.Session, req *jsonrpc.Request) *jsonrpc.Response

// guardOpen rejects operation requests until the handshake completed.
func (e *Engine) guardOpen(ctx context.Context, sess sessions.Session, req *jsonrpc.Request, h requestHandler) *jsonrpc.Response {
	if sess.State() != sessions.SessionStateOpen {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session not ready", nil)
	}
	return h(ctx, sess, req)
}

func (e *Engine) handlePing(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	res, err := jsonrpc.NewResultResponse(req.ID, mcp.EmptyResult{})
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return res
}

func (e *Engine) handleToolsList(ctx context.Context, sess sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	tc, ok, err := e.srv.GetToolsCapability(ctx, sess)
	if err != nil {
		e.log.ErrorContext(ctx, "tools.capability.failed", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools not supported", nil)
	}

	var listReq mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &listReq); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
		}
	}
	var cursor *string
	if listReq.Cursor != "" {
		cursor = &listReq.Cursor
	}

	page, err := tc.ListTools(ctx, sess, cursor)
	if err != nil {
		e.log.ErrorContext(ctx, "tools.list.failed", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	result := mcp.ListToolsResult{Tools: page.Items}
	if result.Tools == nil {
		result.Tools = []mcp.Tool{}
	}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return res
}

func (e *Engine) handleToolCall(ctx context.Context, sess sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	tc, ok, err := e.srv.GetToolsCapability(ctx, sess)
	if err != nil {
		e.log.ErrorContext(ctx, "tools.capability.failed", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools not supported", nil)
	}

	var callReq mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &callReq); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: callReq.Name})
	start := time.Now()
	result, err := tc.CallTool(ctx, sess, &callReq)
	if err != nil {
		var ve *mcpservice.ValidationError
		if errors.As(err, &ve) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, ve.Error(), ve.Fields)
		}
		var nf *mcpservice.ErrToolNotFound
		if errors.As(err, &nf) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, nf.Error(), nil)
		}
		e.log.ErrorContext(ctx, "tools.call.failed",
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
			slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	e.log.InfoContext(ctx, "tools.call.completed",
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		slog.Bool("is_error", result.IsError))

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return res
}

// HandleNotification processes one JSON-RPC notification. Notifications never
// produce a response; errors are returned for the transport to translate.
func (e *Engine) HandleNotification(ctx context.Context, sess sessions.Session, req *jsonrpc.Request) error {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		Type:   "notification",
	})

	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		if err := e.OpenSession(ctx, sess.SessionID()); err != nil {
			return err
		}
		e.log.InfoContext(ctx, "session.opened")
		return nil
	case mcp.CancelledNotificationMethod:
		var cn mcp.CancelledNotification
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params, &cn)
		}
		e.log.InfoContext(ctx, "rpc.request.cancelled",
			slog.String("request_id", cn.RequestID),
			slog.String("reason", cn.Reason))
		return nil
	default:
		// Unknown notifications are ignored per JSON-RPC semantics.
		e.log.DebugContext(ctx, "rpc.notification.ignored")
		return nil
	}
}

// StreamSession attaches a subscriber to the session's ordered event stream,
// replaying from lastEventID first. While the stream is live, tool list
// changes are published into it as notifications.
func (e *Engine) StreamSession(ctx context.Context, sess sessions.Session, lastEventID string, handler sessions.MessageHandlerFunction) error {
	if tc, ok, err := e.srv.GetToolsCapability(ctx, sess); err == nil && ok {
		if lc, lcOK, lcErr := tc.GetListChangedCapability(ctx, sess); lcErr == nil && lcOK {
			_, regErr := lc.Register(ctx, sess, func(ctx context.Context, s sessions.Session) {
				if err := e.PublishToolListChanged(ctx, s.SessionID()); err != nil {
					e.log.WarnContext(ctx, "tools.list_changed.publish_failed", slog.String("err", err.Error()))
				}
			})
			if regErr != nil {
				e.log.WarnContext(ctx, "tools.list_changed.register_failed", slog.String("err", regErr.Error()))
			}
		}
	}

	return e.host.SubscribeSession(ctx, sess.SessionID(), lastEventID, handler)
}

// PublishToolListChanged appends a tools/list_changed notification to the
// session's event stream.
func (e *Engine) PublishToolListChanged(ctx context.Context, sessionID string) error {
	note := jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         string(mcp.ToolsListChangedNotificationMethod),
	}
	b, err := json.Marshal(note)
	if err != nil {
		return err
	}
	_, err = e.host.PublishSession(ctx, sessionID, b)
	return err
}
