package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no correlation ID.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// Response represents a JSON-RPC response.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: b, ID: id}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// AnyMessage is a generic JSON-RPC message (request, notification, or response).
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// UnmarshalJSON enforces JSON-RPC 2.0 structural rules: a message must either
// carry a method (request/notification) or exactly one of result/error
// (response), and must declare version "2.0".
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type alias AnyMessage
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if raw.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, raw.JSONRPCVersion)
	}

	hasMethod := raw.Method != ""
	hasResult := len(raw.Result) > 0
	hasError := raw.Error != nil

	switch {
	case hasMethod && (hasResult || hasError):
		return fmt.Errorf("request message cannot have result or error fields")
	case !hasMethod && hasResult && hasError:
		return fmt.Errorf("response message cannot have both result and error fields")
	case !hasMethod && !hasResult && !hasError:
		return fmt.Errorf("response message must have either result or error field")
	}

	*m = AnyMessage(raw)
	return nil
}

// Type returns "request", "notification", or "response".
func (m *AnyMessage) Type() string {
	if m.Method != "" {
		if m.ID.IsNil() {
			return "notification"
		}
		return "request"
	}
	return "response"
}

// AsRequest returns the message as a Request if it is one, otherwise nil.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}

// AsResponse returns the message as a Response if it is one, otherwise nil.
func (m *AnyMessage) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}
	return &Response{JSONRPCVersion: m.JSONRPCVersion, Result: m.Result, Error: m.Error, ID: m.ID}
}
