package streaminghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/weatherwire/weatherwire/internal/engine"
	"github.com/weatherwire/weatherwire/internal/jsonrpc"
	"github.com/weatherwire/weatherwire/internal/logctx"
	"github.com/weatherwire/weatherwire/mcp"
	"github.com/weatherwire/weatherwire/mcpservice"
	"github.com/weatherwire/weatherwire/sessions"
)

var (
	ErrSessionHeaderMissing = errors.New("missing mcp-session-id header")
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	// Canonical header names; Go matches headers case-insensitively.
	lastEventIDHeader        = "Last-Event-ID"
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"

	// Inbound POST bodies are bounded; weather tool calls are small.
	maxBodyBytes = 1 << 20
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections that
// happen before a JSON-RPC exchange is possible. This is transport-level, not
// JSON-RPC framing. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// writeJSONRPC writes a JSON-RPC response envelope with the given HTTP status.
func writeJSONRPC(w http.ResponseWriter, status int, res *jsonrpc.Response) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// Option configures the StreamingHTTPHandler.
type Option func(*newConfig)

type newConfig struct {
	logger     *slog.Logger
	serverName string
}

// WithLogger sets the handler's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithServerName sets the name used in request logs.
func WithServerName(name string) Option {
	return func(c *newConfig) { c.serverName = name }
}

// StreamingHTTPHandler serves the streamable HTTP transport: POST carries
// JSON-RPC messages in, GET attaches an SSE stream of server-to-client
// messages, and DELETE tears a session down.
type StreamingHTTPHandler struct {
	log *slog.Logger
	mux *http.ServeMux
	eng *engine.Engine

	endpointPath string
	serverName   string
}

var _ http.Handler = (*StreamingHTTPHandler)(nil)

// lockedWriteFlusher serializes concurrent SSE writes/flushes and refuses to
// write after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// New constructs a handler serving the MCP endpoint described by
// publicEndpoint (only its path is used for routing) over the given session
// host and server capabilities.
func New(ctx context.Context, publicEndpoint string, host sessions.SessionHost, server mcpservice.ServerCapabilities, opts ...Option) (*StreamingHTTPHandler, error) {
	cfg := newConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	h := &StreamingHTTPHandler{
		log:          cfg.logger,
		eng:          engine.NewEngine(host, server, engine.WithLogger(cfg.logger)),
		endpointPath: path,
		serverName:   cfg.serverName,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", path), h.handlePostMCP)
	mux.HandleFunc(fmt.Sprintf("GET %s", path), h.handleGetMCP)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", path), h.handleDeleteMCP)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux = mux

	return h, nil
}

func (h *StreamingHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})

	defer func() {
		if rec := recover(); rec != nil {
			h.log.ErrorContext(ctx, "http.panic", slog.Any("panic", rec))
			// Headers may already be written for streaming responses; this
			// is best-effort.
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
		}
	}()

	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// handlePostMCP accepts a single JSON-RPC message: an initialize request that
// mints a session, or a request/notification on an existing one.
func (h *StreamingHTTPHandler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	// Batch arrays are rejected outright; every exchange is one message.
	if trimmed := bytes.TrimLeft(body, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		writeJSONError(w, http.StatusBadRequest, "batch requests are not supported")
		h.log.WarnContext(ctx, "rpc.batch.rejected")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		writeJSONRPC(w, http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, err.Error(), nil))
		h.log.WarnContext(ctx, "rpc.message.invalid", slog.String("err", err.Error()))
		return
	}

	req := msg.AsRequest()
	if req == nil {
		// Clients never owe this server a response; inbound response
		// envelopes have nothing to correlate with.
		writeJSONError(w, http.StatusBadRequest, "unexpected response message")
		return
	}

	sessionID := r.Header.Get(mcpSessionIDHeader)
	if sessionID == "" {
		h.handleInitializePost(ctx, w, req)
		h.log.InfoContext(ctx, "http.post.done", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return
	}

	sess, err := h.eng.LoadSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		h.log.ErrorContext(ctx, "session.load.failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.SessionID(),
		ProtocolVersion: sess.ProtocolVersion(),
		State:           sess.State(),
	})

	if pv := r.Header.Get(mcpProtocolVersionHeader); pv != "" && pv != sess.ProtocolVersion() {
		writeJSONError(w, http.StatusBadRequest, "protocol version mismatch")
		h.log.WarnContext(ctx, "protocol_version.mismatch", slog.String("got", pv))
		return
	}

	if mcp.Method(req.Method) == mcp.InitializeMethod {
		writeJSONError(w, http.StatusConflict, "session already initialized")
		return
	}

	if req.IsNotification() {
		if err := h.eng.HandleNotification(ctx, sess, req); err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) || errors.Is(err, sessions.ErrSessionClosed) {
				writeJSONError(w, http.StatusNotFound, "session not found")
				return
			}
			h.log.ErrorContext(ctx, "rpc.notification.failed", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "http.post.done", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return
	}

	res := h.eng.HandleRequest(ctx, sess, req)
	writeJSONRPC(w, http.StatusOK, res)
	h.log.InfoContext(ctx, "http.post.done", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// handleInitializePost mints a session for an initialize request arriving
// without a session header.
func (h *StreamingHTTPHandler) handleInitializePost(ctx context.Context, w http.ResponseWriter, req *jsonrpc.Request) {
	if mcp.Method(req.Method) != mcp.InitializeMethod {
		writeJSONError(w, http.StatusNotFound, "expected initialize request")
		h.log.WarnContext(ctx, "session.missing", slog.String("method", req.Method))
		return
	}
	if req.IsNotification() {
		writeJSONError(w, http.StatusBadRequest, "initialize must be a request")
		return
	}

	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			writeJSONRPC(w, http.StatusBadRequest, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params", nil))
			return
		}
	}

	initRes, sess, err := h.eng.InitializeSession(ctx, &initReq)
	if err != nil {
		h.log.ErrorContext(ctx, "session.initialize.failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	res, err := jsonrpc.NewResultResponse(req.ID, initRes)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.result.marshal_failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set(mcpSessionIDHeader, sess.SessionID())
	w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
	writeJSONRPC(w, http.StatusOK, res)
}

// handleGetMCP attaches an SSE stream to an established session, resuming
// after Last-Event-ID when provided.
func (h *StreamingHTTPHandler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}

	sessionID := r.Header.Get(mcpSessionIDHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, ErrSessionHeaderMissing.Error())
		return
	}

	sess, err := h.eng.LoadSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.SessionID(),
		ProtocolVersion: sess.ProtocolVersion(),
		State:           sess.State(),
	})

	fl, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(mcpSessionIDHeader, sess.SessionID())
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	lwf := &lockedWriteFlusher{Writer: w, Flusher: fl, ctx: ctx}
	lastEventID := r.Header.Get(lastEventIDHeader)

	h.log.InfoContext(ctx, "http.sse.attached", slog.String("last_event_id", lastEventID))
	err = h.eng.StreamSession(ctx, sess, lastEventID, func(ctx context.Context, msgID string, msg []byte) error {
		return writeSSEEvent(lwf, msgID, msg)
	})
	switch {
	case err == nil:
		// Session deleted; the stream ends cleanly.
		h.log.InfoContext(ctx, "http.sse.closed")
	case errors.Is(err, context.Canceled):
		h.log.InfoContext(ctx, "http.sse.client_gone")
	default:
		h.log.WarnContext(ctx, "http.sse.failed", slog.String("err", err.Error()))
	}
}

// handleDeleteMCP tears a session down. 204 on success, 404 when the session
// is unknown or already gone.
func (h *StreamingHTTPHandler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := r.Header.Get(mcpSessionIDHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, ErrSessionHeaderMissing.Error())
		return
	}

	if err := h.eng.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		h.log.ErrorContext(ctx, "session.delete.failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *StreamingHTTPHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// writeSSEEvent writes one Server-Sent Event and flushes it.
func writeSSEEvent(wf *lockedWriteFlusher, msgID string, payload []byte) error {
	if msgID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", msgID); err != nil {
			return fmt.Errorf("write SSE event id: %w", err)
		}
	}
	if _, err := fmt.Fprintf(wf, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write SSE payload: %w", err)
	}
	wf.Flush()
	return nil
}
