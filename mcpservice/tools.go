package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/weatherwire/weatherwire/mcp"
	"github.com/weatherwire/weatherwire/sessions"
)

// ToolHandler handles one tool invocation.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs a tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest carries the decoded, validated arguments for a tool call.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
	constraints []FieldConstraint
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithFieldConstraints declares per-field validation rules. The rules are
// enforced before the handler runs and mirrored into the advertised schema.
func WithFieldConstraints(constraints ...FieldConstraint) ToolOption {
	return func(c *toolConfig) { c.constraints = append(c.constraints, constraints...) }
}

// NewTool builds a StaticTool with typed input A. The input schema is
// reflected from A's struct tags; declared field constraints are overlaid on
// it. Dispatch validates and normalizes arguments against the constraints,
// then strictly decodes into A (unknown fields rejected) before invoking fn.
// A *ValidationError from this path is returned as an error, never as a tool
// result, so the protocol layer can reject the call without running it.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	input := reflectInputSchema[A]()
	applyConstraintsToSchema(&input, cfg.constraints)

	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: input,
	}

	constraints := cfg.constraints

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		raw, err := validateArgs(name, req.Arguments, constraints)
		if err != nil {
			return nil, err
		}

		var a A
		if len(raw) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return nil, &ValidationError{Tool: name, Fields: []FieldError{
					{Field: "(arguments)", Reason: err.Error()},
				}}
			}
		}

		w := newToolResponseWriter(ctx)
		r := &ToolRequest[A]{name: req.Name, raw: raw, args: a}
		if err := fn(ctx, session, w, r); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectInputSchema reflects A into the simplified wire schema. Only object
// roots map cleanly; anything else degrades to an empty strict object.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	return p
}

// ToolsContainer owns a threadsafe set of tools and implements
// ToolsCapability over it. Registering two tools under the same name is a
// programming error and panics; the tool set is wired at startup, so a
// duplicate should stop the process before it serves traffic.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler

	notifier changeNotifier

	pageSize int
}

const defaultToolPageSize = 50

// NewToolsContainer constructs a container holding defs.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	st := &ToolsContainer{
		handlers: make(map[string]ToolHandler, len(defs)),
		pageSize: defaultToolPageSize,
	}
	for _, d := range defs {
		st.register(d)
	}
	return st
}

var _ ToolsCapability = (*ToolsContainer)(nil)

func (st *ToolsContainer) register(def StaticTool) {
	name := def.Descriptor.Name
	if name == "" {
		panic("mcpservice: tool registered without a name")
	}
	if _, exists := st.handlers[name]; exists {
		panic(fmt.Sprintf("mcpservice: duplicate tool registration: %q", name))
	}
	st.tools = append(st.tools, def.Descriptor)
	st.handlers[name] = def.Handler
}

// Add registers a new tool after construction and signals list change.
// Panics on a duplicate name, like NewToolsContainer.
func (st *ToolsContainer) Add(ctx context.Context, def StaticTool) {
	st.mu.Lock()
	st.register(def)
	st.mu.Unlock()
	st.notifier.notify()
}

// Remove deletes a tool by name. Returns true if it was present.
func (st *ToolsContainer) Remove(ctx context.Context, name string) bool {
	st.mu.Lock()
	removed := false
	n := 0
	for _, t := range st.tools {
		if t.Name == name {
			removed = true
			continue
		}
		st.tools[n] = t
		n++
	}
	if removed {
		st.tools = st.tools[:n]
		delete(st.handlers, name)
	}
	st.mu.Unlock()
	if removed {
		st.notifier.notify()
	}
	return removed
}

// SetPageSize overrides the ListTools page size. Non-positive values are ignored.
func (st *ToolsContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	st.mu.Lock()
	st.pageSize = n
	st.mu.Unlock()
}

// ListTools returns one page of descriptors. Cursors are integer offsets into
// the registration order.
func (st *ToolsContainer) ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	st.mu.RLock()
	all := make([]mcp.Tool, len(st.tools))
	copy(all, st.tools)
	pageSize := st.pageSize
	st.mu.RUnlock()

	start := parseCursor(cursor)
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	items := all[start:end]
	if end < len(all) {
		return NewPageWithCursor(items, strconv.Itoa(end)), nil
	}
	return NewPage(items), nil
}

// ErrToolNotFound wraps the unknown-tool case so callers can distinguish it
// from handler failures.
type ErrToolNotFound struct{ Name string }

func (e *ErrToolNotFound) Error() string { return fmt.Sprintf("tool not found: %s", e.Name) }

// CallTool dispatches to the named tool's handler.
func (st *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, &ValidationError{Tool: "", Fields: []FieldError{{Field: "name", Reason: "required"}}}
	}
	st.mu.RLock()
	h := st.handlers[req.Name]
	st.mu.RUnlock()
	if h == nil {
		return nil, &ErrToolNotFound{Name: req.Name}
	}
	return h(ctx, session, req)
}

// GetListChangedCapability reports listChanged support; the container always
// supports it.
func (st *ToolsContainer) GetListChangedCapability(ctx context.Context, session sessions.Session) (ToolListChangedCapability, bool, error) {
	return &containerListChanged{st: st}, true, nil
}

type containerListChanged struct{ st *ToolsContainer }

// Register tails the container's change signal for the life of ctx, invoking
// fn once per change.
func (c *containerListChanged) Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (bool, error) {
	ch := c.st.notifier.subscribe()
	go func() {
		defer c.st.notifier.unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				fn(ctx, session)
			}
		}
	}()
	return true, nil
}

// TextResult builds a single-text-block result.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// Errorf builds an error-flagged result with one text block.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}
