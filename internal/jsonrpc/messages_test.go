package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestAnyMessageRejectsWrongVersion(t *testing.T) {
	var m AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"1.0","method":"ping","id":1}`), &m); err == nil {
		t.Fatal("expected error for jsonrpc 1.0")
	}
	if err := json.Unmarshal([]byte(`{"method":"ping","id":1}`), &m); err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestAnyMessageRejectsHybridShapes(t *testing.T) {
	var m AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"ping","result":{},"id":1}`), &m); err == nil {
		t.Fatal("expected error for method+result")
	}
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1}`), &m); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestAnyMessageTypeClassification(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"jsonrpc":"2.0","method":"ping","id":1}`, "request"},
		{`{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{`{"jsonrpc":"2.0","result":{},"id":1}`, "response"},
	}
	for _, tc := range cases {
		var m AnyMessage
		if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if got := m.Type(); got != tc.want {
			t.Fatalf("Type(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestAsRequestAndAsResponse(t *testing.T) {
	var m AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"tools/list","id":"abc"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	req := m.AsRequest()
	if req == nil || req.Method != "tools/list" || req.ID.String() != "abc" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if m.AsResponse() != nil {
		t.Fatal("request should not convert to response")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	cases := []struct {
		wire string
		str  string
	}{
		{`1`, "1"},
		{`"abc"`, "abc"},
		{`1.5`, "1.5"},
	}
	for _, tc := range cases {
		var id RequestID
		if err := json.Unmarshal([]byte(tc.wire), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.wire, err)
		}
		if id.String() != tc.str {
			t.Fatalf("String(%s) = %s, want %s", tc.wire, id.String(), tc.str)
		}
		out, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != tc.wire {
			t.Fatalf("round trip %s -> %s", tc.wire, out)
		}
	}

	var nilID *RequestID
	if !nilID.IsNil() {
		t.Fatal("nil pointer should be nil ID")
	}
}

func TestIsNotification(t *testing.T) {
	req := &Request{JSONRPCVersion: ProtocolVersion, Method: "x"}
	if !req.IsNotification() {
		t.Fatal("request without ID should be a notification")
	}
	req.ID = NewRequestID(7)
	if req.IsNotification() {
		t.Fatal("request with ID should not be a notification")
	}
}

func TestNewErrorResponseShape(t *testing.T) {
	res := NewErrorResponse(NewRequestID(3), ErrorCodeMethodNotFound, "method not found: nope", nil)
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m AnyMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if m.Type() != "response" || m.Error == nil || m.Error.Code != ErrorCodeMethodNotFound {
		t.Fatalf("unexpected shape: %s", b)
	}
}
