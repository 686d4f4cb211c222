package patchwork_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	patchwork "github.com/patchwork-ai/patchwork-go"
	"github.com/patchwork-ai/patchwork-go/acp"
	"github.com/patchwork-ai/patchwork-go/acptest"
)

type fileSummary struct {
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

func allowOnceOption() acp.PermissionOption {
	return acp.PermissionOption{ID: "allow-1", Name: "Allow", Kind: acp.PermissionOptionAllowOnce}
}

func rejectOnceOption() acp.PermissionOption {
	return acp.PermissionOption{ID: "reject-1", Name: "Reject", Kind: acp.PermissionOptionRejectOnce}
}

func TestThink_ResultExtraction(t *testing.T) {
	t.Run("resolves to the value passed to the completion tool", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.ScriptToolCall("return_result", map[string]any{
			"result": map[string]any{"summary": "ok", "topics": []string{"x"}},
		})
		agent.ScriptStop(acp.StopReasonEndTurn)

		pw := patchwork.New(agent)
		got, err := patchwork.Think[fileSummary](pw).
			Text("Summarize the docs.").
			Run(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := fileSummary{Summary: "ok", Topics: []string{"x"}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("fails with no-result when the session stops silently", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.ScriptStop(acp.StopReasonEndTurn)

		pw := patchwork.New(agent)
		_, err := patchwork.Think[fileSummary](pw).
			Text("Summarize the docs.").
			Run(context.Background())
		if !patchwork.IsNoResult(err) {
			t.Fatalf("expected no-result error, got %v", err)
		}
	})

	t.Run("stop reason does not affect completion", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.ScriptToolCall("return_result", map[string]any{
			"result": map[string]any{"summary": "ok", "topics": []string{}},
		})
		agent.ScriptStop(acp.StopReasonRefusal)

		pw := patchwork.New(agent)
		got, err := patchwork.Think[fileSummary](pw).Text("Go.").Run(context.Background())
		if err != nil {
			t.Fatalf("expected no error despite refusal stop, got %v", err)
		}
		if got.Summary != "ok" {
			t.Errorf("expected summary %q, got %q", "ok", got.Summary)
		}
	})
}

func TestThink_PermissionPolicy(t *testing.T) {
	t.Run("selects the first allow option", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.ScriptPermissionRequest(rejectOnceOption(), allowOnceOption())
		agent.ScriptStop(acp.StopReasonEndTurn)

		pw := patchwork.New(agent)
		_, err := patchwork.Think[fileSummary](pw).Text("Go.").Run(context.Background())
		if !patchwork.IsNoResult(err) {
			t.Fatalf("expected no-result error, got %v", err)
		}

		outcomes := agent.PermissionOutcomes()
		if len(outcomes) != 1 {
			t.Fatalf("expected 1 permission outcome, got %d", len(outcomes))
		}
		if outcomes[0].Selected == nil || outcomes[0].Selected.OptionID != "allow-1" {
			t.Errorf("expected selection of allow-1, got %+v", outcomes[0])
		}
	})

	t.Run("cancels when only reject options are offered", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.ScriptPermissionRequest(
			rejectOnceOption(),
			acp.PermissionOption{ID: "reject-2", Kind: acp.PermissionOptionRejectAlways},
		)
		agent.ScriptStop(acp.StopReasonEndTurn)

		pw := patchwork.New(agent)
		_, err := patchwork.Think[fileSummary](pw).Text("Go.").Run(context.Background())
		if !patchwork.IsNoResult(err) {
			t.Fatalf("expected no-result error, got %v", err)
		}

		outcomes := agent.PermissionOutcomes()
		if len(outcomes) != 1 {
			t.Fatalf("expected 1 permission outcome, got %d", len(outcomes))
		}
		if outcomes[0].Cancelled == nil {
			t.Errorf("expected cancellation, got %+v", outcomes[0])
		}
	})
}

func TestThink_PromptComposition(t *testing.T) {
	t.Run("prompt carries preamble, text, and tool markers", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.ScriptStop(acp.StopReasonEndTurn)

		pw := patchwork.New(agent, patchwork.WithWorkingDir("/tmp/patchwork-test"))
		b := patchwork.Think[fileSummary](pw).
			Text("Process the data using")
		b = patchwork.Tool(b, "transform", "Transform the input data",
			func(ctx context.Context, req *mcp.CallToolRequest, in struct {
				Value string `json:"value"`
			}) (struct {
				Value string `json:"value"`
			}, error) {
				return in, nil
			})
		b = b.Text("and report back.")

		if _, err := b.Run(context.Background()); !patchwork.IsNoResult(err) {
			t.Fatalf("expected no-result error, got %v", err)
		}

		prompts := agent.Prompts()
		if len(prompts) != 1 {
			t.Fatalf("expected 1 prompt, got %d", len(prompts))
		}
		prompt := prompts[0]

		if !strings.HasPrefix(prompt, "Please complete the following task") {
			t.Errorf("prompt missing preamble: %q", prompt)
		}
		if !strings.Contains(prompt, "invoke the `return_result` tool") {
			t.Errorf("prompt missing completion instruction: %q", prompt)
		}
		if !strings.Contains(prompt, "Process the data using<mcp_tool>transform</mcp_tool> and report back.") {
			t.Errorf("prompt missing tool marker run: %q", prompt)
		}

		dirs := agent.WorkingDirs()
		if len(dirs) != 1 || dirs[0] != "/tmp/patchwork-test" {
			t.Errorf("expected session scoped to /tmp/patchwork-test, got %v", dirs)
		}
	})

	t.Run("explicit spacing disables separators", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.ScriptStop(acp.StopReasonEndTurn)

		pw := patchwork.New(agent)
		_, err := patchwork.Think[fileSummary](pw).
			ExplicitSpacing().
			Text("a").
			Text("b").
			Run(context.Background())
		if !patchwork.IsNoResult(err) {
			t.Fatalf("expected no-result error, got %v", err)
		}

		prompt := agent.Prompts()[0]
		if !strings.HasSuffix(prompt, "ab") {
			t.Errorf("expected prompt ending in %q, got %q", "ab", prompt)
		}
	})
}

func TestThink_EndToEnd(t *testing.T) {
	agent := acptest.NewFakeAgent()
	agent.ScriptNotification("thinking about the task")
	agent.ScriptPermissionRequest(rejectOnceOption(), allowOnceOption())
	agent.ScriptToolCall("lookup_topics", map[string]any{"query": "observability"})
	agent.ScriptToolCall("return_result", map[string]any{
		"result": map[string]any{"summary": "ok", "topics": []string{"x"}},
	})
	agent.ScriptStop(acp.StopReasonEndTurn)

	var queries []string
	pw := patchwork.New(agent)
	b := patchwork.Think[fileSummary](pw).
		Text("Summarize the docs with help from")
	b = patchwork.Tool(b, "lookup_topics", "Look up related topics",
		func(ctx context.Context, req *mcp.CallToolRequest, in struct {
			Query string `json:"query"`
		}) (struct {
			Topics []string `json:"topics"`
		}, error) {
			queries = append(queries, in.Query)
			return struct {
				Topics []string `json:"topics"`
			}{Topics: []string{"tracing", "logging"}}, nil
		})
	b = b.Textln(".")

	got, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := fileSummary{Summary: "ok", Topics: []string{"x"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"observability"}, queries); diff != "" {
		t.Errorf("tool inputs mismatch (-want +got):\n%s", diff)
	}

	outcomes := agent.PermissionOutcomes()
	if len(outcomes) != 1 || outcomes[0].Selected == nil {
		t.Errorf("expected one selected permission outcome, got %+v", outcomes)
	}

	records := agent.ToolCallRecords()
	if len(records) != 2 {
		t.Fatalf("expected 2 tool call records, got %d", len(records))
	}
	for _, record := range records {
		if record.Err != nil {
			t.Errorf("tool call %s failed: %v", record.Name, record.Err)
		}
	}
}

func TestThink_IgnoresUnknownUpdates(t *testing.T) {
	agent := acptest.NewFakeAgent()
	agent.ScriptUpdate(acp.Update{}) // event kind the driver does not model
	agent.ScriptToolCall("return_result", map[string]any{
		"result": map[string]any{"summary": "ok", "topics": []string{}},
	})
	agent.ScriptStop(acp.StopReasonEndTurn)

	pw := patchwork.New(agent)
	got, err := patchwork.Think[fileSummary](pw).Text("Go.").Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Summary != "ok" {
		t.Errorf("expected summary %q, got %q", "ok", got.Summary)
	}
}

func TestThink_ConnectionFailures(t *testing.T) {
	assertConnectionError := func(t *testing.T, err error) {
		t.Helper()
		var perr *patchwork.Error
		if !errors.As(err, &perr) || perr.Kind != patchwork.ConnectionErrorKind {
			t.Fatalf("expected connection error, got %v", err)
		}
	}

	t.Run("session construction failure", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.SetNewSessionError(errors.New("agent unavailable"))

		pw := patchwork.New(agent)
		_, err := patchwork.Think[fileSummary](pw).Text("Go.").Run(context.Background())
		assertConnectionError(t, err)
	})

	t.Run("prompt send failure", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.SetPromptError(errors.New("pipe closed"))

		pw := patchwork.New(agent)
		_, err := patchwork.Think[fileSummary](pw).Text("Go.").Run(context.Background())
		assertConnectionError(t, err)
	})

	t.Run("update read failure", func(t *testing.T) {
		agent := acptest.NewFakeAgent()
		agent.ScriptNotification("partial progress")
		agent.ScriptUpdateError(errors.New("connection reset"))

		pw := patchwork.New(agent)
		_, err := patchwork.Think[fileSummary](pw).Text("Go.").Run(context.Background())
		assertConnectionError(t, err)
	})
}

func TestThink_Cancellation(t *testing.T) {
	agent := acptest.NewFakeAgent() // never stops: simulates an unresponsive agent

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	pw := patchwork.New(agent)
	_, err := patchwork.Think[fileSummary](pw).Text("Go.").Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestThink_DisplayAndDebugSegments(t *testing.T) {
	agent := acptest.NewFakeAgent()
	agent.ScriptStop(acp.StopReasonEndTurn)

	type payload struct {
		Name string
	}

	pw := patchwork.New(agent)
	_, err := patchwork.Think[fileSummary](pw).
		Text("Value:").
		Display(42).
		Text("Details:").
		Debug(payload{Name: "alpha"}).
		Run(context.Background())
	if !patchwork.IsNoResult(err) {
		t.Fatalf("expected no-result error, got %v", err)
	}

	prompt := agent.Prompts()[0]
	if !strings.Contains(prompt, "Value: 42") {
		t.Errorf("prompt missing display interpolation: %q", prompt)
	}
	if !strings.Contains(prompt, "alpha") {
		t.Errorf("prompt missing debug dump: %q", prompt)
	}
}
