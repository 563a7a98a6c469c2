// Package engine implements the protocol core: session lifecycle and
// JSON-RPC dispatch, independent of any transport.
package engine
