package mcp

// ClientCapabilities advertises client features offered during initialize.
// This server consumes none of them today, but the negotiated set is recorded
// on the session for observability.
type ClientCapabilities struct {
	Roots *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"roots,omitempty"`
	Sampling    *struct{} `json:"sampling,omitempty"`
	Elicitation *struct{} `json:"elicitation,omitempty"`
}

// ServerCapabilities advertises server features.
type ServerCapabilities struct {
	Logging *struct{} `json:"logging,omitempty"`
	Tools   *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools,omitempty"`
}

// ImplementationInfo describes the implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// ContentBlock is a typed content part of a tool result. This server only
// ever emits text blocks, but the wire shape allows richer content.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitzero"`
	Data     string `json:"data,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
}

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is a JSON-schema-like description of tool input.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties,omitzero"`
}

// SchemaProperty is a simplified schema node used in tool input schemas.
// Numeric bounds and string length bounds mirror the validation constraints
// enforced server-side so clients can pre-validate.
type SchemaProperty struct {
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitzero"`
	Items       *SchemaProperty `json:"items,omitempty"`
	Enum        []any           `json:"enum,omitempty"`
	Minimum     *float64        `json:"minimum,omitempty"`
	Maximum     *float64        `json:"maximum,omitempty"`
	MinLength   *uint64         `json:"minLength,omitempty"`
	MaxLength   *uint64         `json:"maxLength,omitempty"`
}

// LatestProtocolVersion is the protocol revision this server prefers.
const LatestProtocolVersion = "2025-06-18"
