// Package streaminghttp adapts the protocol engine to the streamable HTTP
// transport: POST for inbound JSON-RPC messages, GET for the server-to-client
// SSE stream, DELETE for session teardown.
package streaminghttp
