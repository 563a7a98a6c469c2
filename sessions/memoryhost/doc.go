// Package memoryhost provides the process-local sessions.SessionHost used by
// the server. Sessions live only as long as the process; there is no
// persistence or cross-process sharing.
package memoryhost
