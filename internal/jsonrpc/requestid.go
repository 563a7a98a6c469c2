package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID represents a JSON-RPC correlation ID, which may be a string or a
// number on the wire. The zero value (and a nil pointer) mean "absent".
type RequestID struct {
	value any
}

// NewRequestID creates a RequestID from a string or numeric value. Any other
// type yields an absent ID.
func NewRequestID(value any) *RequestID {
	switch value.(type) {
	case string, int, int32, int64, float32, float64:
		return &RequestID{value: value}
	default:
		return &RequestID{}
	}
}

// IsNil reports whether the ID is absent.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// String returns the canonical string form of the ID, or "" if absent.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if s, ok := id.value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id.value)
}

// Value returns the underlying value.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Integral numbers are kept as
// int64 so they round-trip without a trailing fraction.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}

	return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
}
