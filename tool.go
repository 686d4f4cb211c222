package patchwork

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ToolFunc is the handler behind a registered tool. It receives the decoded
// input and the request handle for the invocation, and returns the output or
// an error. Errors are reported back to the agent as a failed invocation;
// they never abort the think block.
//
// Handlers commonly close over caller-local state. They may mutate it
// without internal locking: invocations of the same tool are serialized, so
// a handler is never re-entered while a prior call is still in flight.
// Handlers for distinct tools may run concurrently with each other.
type ToolFunc[In, Out any] func(ctx context.Context, req *mcp.CallToolRequest, in In) (Out, error)

// toolEntry defers the actual server registration until the session is
// constructed, so registering a tool has no effect before Run.
type toolEntry struct {
	name        string
	description string
	register    func(server *mcp.Server, logger zerolog.Logger) error
}

// Tool registers a handler under name and embeds a reference to it in the
// prompt, telling the agent about the tool at this point in the text.
//
// Input and output schemas are derived from In and Out by reflection. Tool
// is a free function for the same reason as Think: methods cannot introduce
// type parameters.
//
//	results := []Transformed{}
//	b := patchwork.Think[Summary](pw).Text("Process the data using")
//	b = patchwork.Tool(b, "transform", "Transform the input data",
//		func(ctx context.Context, req *mcp.CallToolRequest, in TransformInput) (TransformOutput, error) {
//			out := transform(in)
//			results = append(results, out.Transformed)
//			return out, nil
//		})
func Tool[Output, In, Out any](
	b *ThinkBuilder[Output],
	name, description string,
	fn ToolFunc[In, Out],
) *ThinkBuilder[Output] {
	b.pw.logger.Debug().Str("tool_name", name).Msg("registering tool")
	if b.registerEntry(newToolEntry(name, description, fn)) {
		b.segments = append(b.segments, toolReferenceSegment(name))
	}
	return b
}

// DefineTool registers a handler under name without embedding a reference in
// the prompt. Use this when the tool should be available but not mentioned
// at this point in the text.
func DefineTool[Output, In, Out any](
	b *ThinkBuilder[Output],
	name, description string,
	fn ToolFunc[In, Out],
) *ThinkBuilder[Output] {
	b.pw.logger.Debug().Str("tool_name", name).Msg("defining tool (hidden from prompt)")
	b.registerEntry(newToolEntry(name, description, fn))
	return b
}

func newToolEntry[In, Out any](name, description string, fn ToolFunc[In, Out]) *toolEntry {
	// One in-flight call per tool name. Handlers mutate captured state, so
	// a second invocation queues until the first releases the slot.
	sem := semaphore.NewWeighted(1)

	return &toolEntry{
		name:        name,
		description: description,
		register: func(server *mcp.Server, logger zerolog.Logger) error {
			inputSchema, err := jsonschema.For[In](nil)
			if err != nil {
				return fmt.Errorf("derive input schema for tool %s: %w", name, err)
			}
			outputSchema, err := jsonschema.For[Out](nil)
			if err != nil {
				return fmt.Errorf("derive output schema for tool %s: %w", name, err)
			}

			mcp.AddTool(server, &mcp.Tool{
				Name:         name,
				Description:  description,
				InputSchema:  inputSchema,
				OutputSchema: outputSchema,
			}, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
				var zero Out
				if err := sem.Acquire(ctx, 1); err != nil {
					return nil, zero, err
				}
				defer sem.Release(1)

				out, err := startActiveToolSpan(ctx, name, description, func(ctx context.Context) (Out, error) {
					return fn(ctx, req, in)
				})
				if err != nil {
					logger.Warn().Err(err).Str("tool_name", name).Msg("tool handler failed")
					return nil, zero, NewToolExecutionError(err)
				}
				return nil, out, nil
			})
			return nil
		},
	}
}
