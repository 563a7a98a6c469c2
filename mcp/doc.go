// Package mcp defines the wire-level types of the Model Context Protocol
// subset spoken by this server: the initialize handshake, the tools surface,
// and the notifications exchanged over the streamable HTTP transport.
//
// The types here are deliberately plain data carriers. Validation and
// dispatch live in the engine and mcpservice packages.
package mcp
