// Package acp defines the surface of the agent/session protocol that
// patchwork drives. The connection machinery itself (process spawning,
// JSON-RPC framing, request multiplexing) lives in the client library that
// implements these interfaces; patchwork only holds a Connection reference,
// opens sessions on it, and reacts to the updates a session yields.
package acp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Connection is a handle to a running agent. Implementations own the
// underlying transport; patchwork never closes a Connection, only the
// sessions it opened on one.
type Connection interface {
	// NewSession opens a session scoped to a working directory, attaching
	// the given tool server so the agent can invoke its tools.
	NewSession(ctx context.Context, params SessionParams) (Session, error)
}

// SessionParams configures a new session.
type SessionParams struct {
	// WorkingDir is the directory the session is scoped to.
	WorkingDir string
	// ToolServer exposes named, schema-described tools to the agent for the
	// lifetime of the session. May be nil when the session needs no tools.
	ToolServer *mcp.Server
}

// Session is one round of prompt submission and update processing.
type Session interface {
	// Prompt submits prompt text to the agent.
	Prompt(ctx context.Context, text string) error
	// NextUpdate blocks until the session yields its next update.
	NextUpdate(ctx context.Context) (Update, error)
	// RespondPermission answers a pending permission request. Exactly one
	// response must be sent per request.
	RespondPermission(ctx context.Context, requestID string, outcome PermissionOutcome) error
	// Close releases the session. It does not close the parent connection.
	Close() error
}
