// Package mcpservice defines the server-side capability surface: what the
// server advertises during initialize and how tool listing and dispatch work.
// Tools are declared statically with typed argument structs; per-field
// validation constraints are enforced at dispatch and mirrored into the
// advertised input schemas.
package mcpservice
