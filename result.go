package patchwork

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// returnResultToolName is reserved for the completion tool; caller
// registrations under this name are rejected.
const returnResultToolName = "return_result"

// returnResultInput is the input schema for the completion tool.
type returnResultInput[T any] struct {
	// Result is the final value for the task.
	Result T `json:"result" jsonschema:"The result value to return."`
}

// returnResultOutput is the output schema for the completion tool.
type returnResultOutput struct {
	Success bool `json:"success" jsonschema:"Whether the result was successfully recorded."`
}

// outputCell is a single-assignment slot for the session's final value.
// The first write is authoritative; later writes are refused.
type outputCell[T any] struct {
	mu    sync.Mutex
	done  bool
	value T
}

func (c *outputCell[T]) put(value T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.done = true
	c.value = value
	return true
}

func (c *outputCell[T]) get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.done
}

// addReturnResultTool registers the completion tool on the session's tool
// server. Invoking it is the only sanctioned way for the agent to report
// "the task is complete with this value".
func addReturnResultTool[T any](server *mcp.Server, cell *outputCell[T], logger zerolog.Logger) error {
	inputSchema, err := jsonschema.For[returnResultInput[T]](nil)
	if err != nil {
		return fmt.Errorf("derive schema for %s input: %w", returnResultToolName, err)
	}
	outputSchema, err := jsonschema.For[returnResultOutput](nil)
	if err != nil {
		return fmt.Errorf("derive schema for %s output: %w", returnResultToolName, err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:         returnResultToolName,
		Description:  "Return the final result. Call this when you have completed the task.",
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in returnResultInput[T]) (*mcp.CallToolResult, returnResultOutput, error) {
		logger.Debug().Msg("return_result tool invoked")
		if !cell.put(in.Result) {
			return nil, returnResultOutput{}, errors.New("a result was already returned for this task")
		}
		return nil, returnResultOutput{Success: true}, nil
	})
	return nil
}
