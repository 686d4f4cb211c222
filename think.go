package patchwork

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/patchwork-ai/patchwork-go/acp"
	"github.com/sanity-io/litter"
)

const serverInstructions = "You have access to tools. Call return_result when done."

// ThinkBuilder composes a prompt with embedded tools and drives one agent
// session to collect a typed result.
//
// Created via [Think]. Chaining methods return the receiver; construction is
// single-threaded and the builder must not be shared across goroutines.
// Registration mistakes (duplicate or reserved tool names) are remembered
// and surfaced by Run.
type ThinkBuilder[Output any] struct {
	pw              *Patchwork
	segments        []segment
	tools           []*toolEntry
	names           map[string]struct{}
	explicitSpacing bool
	err             error
}

func newThinkBuilder[Output any](p *Patchwork) *ThinkBuilder[Output] {
	b := &ThinkBuilder[Output]{
		pw:    p,
		names: make(map[string]struct{}),
	}
	return b.
		Textln("Please complete the following task to the best of your ability,").
		Textln("No further instructions will be given,").
		Textln("so do your best to interpret the instructions without further feedback from the user,").
		Textln("making use of the tools you have available.").
		Textln("").
		Textln("IMPORTANT: When complete, invoke the `return_result` tool with the requested result.").
		Textln("")
}

// Text appends literal text to the prompt.
func (b *ThinkBuilder[Output]) Text(text string) *ThinkBuilder[Output] {
	b.segments = append(b.segments, textSegment(text))
	return b
}

// Textln appends literal text to the prompt followed by a newline.
func (b *ThinkBuilder[Output]) Textln(text string) *ThinkBuilder[Output] {
	b.segments = append(b.segments, textSegment(text+"\n"))
	return b
}

// Display interpolates a value using its default string form.
func (b *ThinkBuilder[Output]) Display(value any) *ThinkBuilder[Output] {
	b.segments = append(b.segments, textSegment(fmt.Sprint(value)))
	return b
}

// Debug interpolates the diagnostic dump of a value. Useful for structs,
// nested data, or whenever the agent should see field names.
func (b *ThinkBuilder[Output]) Debug(value any) *ThinkBuilder[Output] {
	b.segments = append(b.segments, textSegment(litter.Sdump(value)))
	return b
}

// ExplicitSpacing disables automatic spacing between segments.
//
// By default the builder inserts spaces between text segments unless the
// next segment starts with punctuation. Call this to take full control of
// whitespace.
func (b *ThinkBuilder[Output]) ExplicitSpacing() *ThinkBuilder[Output] {
	b.explicitSpacing = true
	return b
}

func (b *ThinkBuilder[Output]) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// registerEntry validates and records a tool entry. It reports whether the
// entry was accepted; rejections become deferred errors surfaced by Run.
func (b *ThinkBuilder[Output]) registerEntry(entry *toolEntry) bool {
	if entry.name == returnResultToolName {
		b.setErr(NewInitError(fmt.Sprintf("tool name %q is reserved for the completion tool", entry.name)))
		return false
	}
	if _, exists := b.names[entry.name]; exists {
		b.setErr(NewInitError(fmt.Sprintf("tool %q registered twice", entry.name)))
		return false
	}
	b.names[entry.name] = struct{}{}
	b.tools = append(b.tools, entry)
	return true
}

// Run renders the prompt, opens a session with the registered tools
// attached, and drives the session's update loop until it stops.
//
// The call blocks until the session terminates or ctx is cancelled. It
// returns the value the agent passed to the completion tool, or an error:
// a connection error if the transport failed, a no-result error if the
// session stopped without the completion tool being invoked. Retrying is
// the caller's responsibility.
func (b *ThinkBuilder[Output]) Run(ctx context.Context) (Output, error) {
	var zero Output
	if b.err != nil {
		return zero, b.err
	}
	logger := b.pw.logger

	return traceThink(ctx, len(b.tools), func(ctx context.Context) (Output, error) {
		prompt := buildPrompt(b.segments, b.explicitSpacing)

		server := mcp.NewServer(
			&mcp.Implementation{Name: b.pw.serverName, Version: "0.1.0"},
			&mcp.ServerOptions{Instructions: serverInstructions},
		)
		for _, entry := range b.tools {
			if err := entry.register(server, logger); err != nil {
				return zero, NewSchemaError(err)
			}
		}

		cell := &outputCell[Output]{}
		if err := addReturnResultTool(server, cell, logger); err != nil {
			return zero, NewSchemaError(err)
		}

		session, err := b.pw.conn.NewSession(ctx, acp.SessionParams{
			WorkingDir: b.pw.workingDir,
			ToolServer: server,
		})
		if err != nil {
			return zero, NewConnectionError(err)
		}
		defer session.Close()

		logger.Info().Int("prompt_len", len(prompt)).Msg("executing think block")
		logger.Trace().Str("prompt", prompt).Msg("full prompt")

		if err := session.Prompt(ctx, prompt); err != nil {
			return zero, NewConnectionError(err)
		}

		if err := b.driveUpdates(ctx, session); err != nil {
			return zero, err
		}

		value, ok := cell.get()
		if !ok {
			logger.Warn().Msg("think block completed but no result was returned")
			return zero, NewNoResultError()
		}
		logger.Info().Msg("think block completed successfully")
		return value, nil
	})
}

// driveUpdates reads session updates until a stop signal arrives.
// Notifications are logged, permission requests are answered with the fixed
// auto-approve policy, and unrecognized update kinds are skipped.
func (b *ThinkBuilder[Output]) driveUpdates(ctx context.Context, session acp.Session) error {
	logger := b.pw.logger

	for {
		update, err := session.NextUpdate(ctx)
		if err != nil {
			return NewConnectionError(err)
		}

		switch {
		case update.Stop != nil:
			// The reason is informational only: success is determined by
			// whether the completion tool was invoked, not by how the
			// session chose to stop.
			logger.Debug().Str("stop_reason", string(update.Stop.Reason)).Msg("session stopped")
			return nil
		case update.Notification != nil:
			logger.Debug().Str("text", update.Notification.Text).Msg("received session notification")
		case update.Permission != nil:
			request := update.Permission
			logger.Debug().Str("request_id", request.ID).Msg("received tool use permission request")
			if err := session.RespondPermission(ctx, request.ID, approveOutcome(request)); err != nil {
				return NewConnectionError(err)
			}
		default:
			// Update kinds this package does not model are ignored.
		}
	}
}

// approveOutcome applies the fixed permission policy: select the first
// offered allow option, one-time or always. A request offering no allow
// option is resolved as a cancellation. Reject options are never selected.
func approveOutcome(request *acp.PermissionRequest) acp.PermissionOutcome {
	for _, option := range request.Options {
		switch option.Kind {
		case acp.PermissionOptionAllowOnce, acp.PermissionOptionAllowAlways:
			return acp.NewSelectedOutcome(option.ID)
		}
	}
	return acp.NewCancelledOutcome()
}
