package mcpservice

import (
	"context"
	"errors"
	"sync"

	"github.com/weatherwire/weatherwire/mcp"
)

// ToolResponseWriter lets a handler compose a CallToolResult incrementally.
// Writes after Result() return ErrFinalized; mutating methods observe ctx
// cancellation and fail fast.
type ToolResponseWriter interface {
	AppendText(text string) error
	AppendBlocks(blocks ...mcp.ContentBlock) error
	SetError(isError bool)
	// Result finalizes and returns the accumulated result. Idempotent.
	Result() *mcp.CallToolResult
}

// ErrFinalized is returned when writing after Result() was called.
var ErrFinalized = errors.New("result already finalized")

type toolResponseWriter struct {
	ctx context.Context

	mu        sync.Mutex
	finalized bool
	blocks    []mcp.ContentBlock
	isError   bool
}

var _ ToolResponseWriter = (*toolResponseWriter)(nil)

func newToolResponseWriter(ctx context.Context) *toolResponseWriter {
	return &toolResponseWriter{ctx: ctx}
}

func (w *toolResponseWriter) AppendText(text string) error {
	if text == "" {
		return nil
	}
	return w.AppendBlocks(mcp.ContentBlock{Type: "text", Text: text})
}

func (w *toolResponseWriter) AppendBlocks(blocks ...mcp.ContentBlock) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.blocks = append(w.blocks, blocks...)
	return nil
}

func (w *toolResponseWriter) SetError(isError bool) {
	w.mu.Lock()
	w.isError = isError
	w.mu.Unlock()
}

func (w *toolResponseWriter) Result() *mcp.CallToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true
	return &mcp.CallToolResult{
		Content: append([]mcp.ContentBlock(nil), w.blocks...),
		IsError: w.isError,
	}
}
