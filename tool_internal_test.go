package patchwork

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func countToolReferences(segments []segment) int {
	n := 0
	for _, seg := range segments {
		if seg.toolReference != nil {
			n++
		}
	}
	return n
}

func TestTool_RejectedRegistrationAppendsNoMarker(t *testing.T) {
	echo := func(ctx context.Context, req *mcp.CallToolRequest, in struct {
		Value string `json:"value"`
	}) (struct {
		Value string `json:"value"`
	}, error) {
		return in, nil
	}

	b := Think[string](New(nil))
	b = Tool(b, "echo", "Echo a value", echo)
	if got := countToolReferences(b.segments); got != 1 {
		t.Fatalf("expected 1 tool marker after registration, got %d", got)
	}

	b = Tool(b, "echo", "Echo a value again", echo)
	if got := countToolReferences(b.segments); got != 1 {
		t.Errorf("duplicate registration must not append a marker, got %d", got)
	}

	b = Tool(b, returnResultToolName, "Impostor", echo)
	if got := countToolReferences(b.segments); got != 1 {
		t.Errorf("reserved-name registration must not append a marker, got %d", got)
	}

	if b.err == nil {
		t.Errorf("expected deferred registration error")
	}
}
