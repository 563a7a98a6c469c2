package mcpservice

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weatherwire/weatherwire/mcp"
)

// FieldKind identifies which family of checks a constraint carries.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldNumber
)

// FieldConstraint is a declarative check on a single argument field. Tools
// declare constraints up front; dispatch evaluates them against the raw
// arguments before the handler ever runs, and the same descriptors are
// projected into the advertised input schema so clients see the rules too.
type FieldConstraint struct {
	Name string
	Kind FieldKind

	Required bool

	// String checks. ExactLen of 0 means unconstrained. Uppercase is a
	// normalization, not a check: the value is folded before the handler
	// sees it.
	ExactLen  int
	Uppercase bool

	// Numeric bounds, inclusive. Nil means unbounded on that side.
	Min *float64
	Max *float64
}

// FieldError names one argument field that failed validation and why.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports every offending field from one dispatch attempt.
// Dispatch never invokes the tool handler when it returns a ValidationError.
type ValidationError struct {
	Tool   string       `json:"tool"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, strings.Join(parts, "; "))
}

// validateArgs checks raw arguments against the constraints and returns the
// (possibly normalized) argument object. All constraints are evaluated so the
// error lists every offending field, not just the first.
func validateArgs(toolName string, raw json.RawMessage, constraints []FieldConstraint) (json.RawMessage, error) {
	if len(constraints) == 0 {
		return raw, nil
	}

	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &ValidationError{Tool: toolName, Fields: []FieldError{
				{Field: "(arguments)", Reason: "must be a JSON object"},
			}}
		}
	}

	var fieldErrs []FieldError
	fail := func(name, reason string) {
		fieldErrs = append(fieldErrs, FieldError{Field: name, Reason: reason})
	}

	for _, c := range constraints {
		v, present := args[c.Name]
		if !present {
			if c.Required {
				fail(c.Name, "required")
			}
			continue
		}

		switch c.Kind {
		case FieldString:
			s, ok := v.(string)
			if !ok {
				fail(c.Name, "must be a string")
				continue
			}
			if c.Uppercase {
				s = strings.ToUpper(s)
				args[c.Name] = s
			}
			if c.ExactLen > 0 && len(s) != c.ExactLen {
				fail(c.Name, fmt.Sprintf("must be exactly %d characters", c.ExactLen))
			}
		case FieldNumber:
			n, ok := v.(float64)
			if !ok {
				fail(c.Name, "must be a number")
				continue
			}
			if c.Min != nil && n < *c.Min {
				fail(c.Name, fmt.Sprintf("must be >= %g", *c.Min))
			}
			if c.Max != nil && n > *c.Max {
				fail(c.Name, fmt.Sprintf("must be <= %g", *c.Max))
			}
		}
	}

	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Tool: toolName, Fields: fieldErrs}
	}

	normalized, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("re-encode arguments: %w", err)
	}
	return normalized, nil
}

// applyConstraintsToSchema overlays the declared constraints onto the
// reflected input schema so the advertised contract matches what dispatch
// enforces.
func applyConstraintsToSchema(schema *mcp.ToolInputSchema, constraints []FieldConstraint) {
	for _, c := range constraints {
		prop, ok := schema.Properties[c.Name]
		if !ok {
			continue
		}
		switch c.Kind {
		case FieldString:
			if c.ExactLen > 0 {
				n := uint64(c.ExactLen)
				prop.MinLength = &n
				prop.MaxLength = &n
			}
		case FieldNumber:
			if c.Min != nil {
				min := *c.Min
				prop.Minimum = &min
			}
			if c.Max != nil {
				max := *c.Max
				prop.Maximum = &max
			}
		}
		schema.Properties[c.Name] = prop
		if c.Required && !contains(schema.Required, c.Name) {
			schema.Required = append(schema.Required, c.Name)
		}
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Float returns a pointer to f, for constraint bounds.
func Float(f float64) *float64 { return &f }
