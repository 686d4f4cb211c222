// Package acptest provides a scripted in-memory agent for testing code
// built on patchwork.
//
// A FakeAgent implements acp.Connection. Tests enqueue a script of session
// behavior (notifications, permission requests, tool invocations, a stop
// signal) and hand the agent to patchwork.New. Scripted tool invocations go
// through a real MCP client connected to the registered tool server over the
// SDK's in-memory transport, so the full schema/codec path is exercised.
package acptest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/patchwork-ai/patchwork-go/acp"
	"golang.org/x/sync/errgroup"
)

// ToolCall names a scripted tool invocation.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// ToolCallRecord captures one scripted tool invocation and its outcome.
type ToolCallRecord struct {
	Name   string
	Args   json.RawMessage
	Result *mcp.CallToolResult
	Err    error
}

// step is one unit of scripted session behavior. Either an update to yield,
// an update error to fail with, or tool calls to perform before yielding the
// next update.
type step struct {
	update    *acp.Update
	updateErr error
	toolCalls []ToolCall
}

// FakeAgent is a scripted acp.Connection for tests.
type FakeAgent struct {
	mu sync.Mutex

	script        []step
	newSessionErr error
	promptErr     error

	prompts     []string
	workingDirs []string
	outcomes    []acp.PermissionOutcome
	toolCalls   []ToolCallRecord
}

// NewFakeAgent constructs an empty fake agent. An unscripted agent blocks in
// NextUpdate until the context is cancelled, like an unresponsive agent.
func NewFakeAgent() *FakeAgent {
	return &FakeAgent{}
}

// ScriptNotification enqueues an informational session event.
func (a *FakeAgent) ScriptNotification(text string) *FakeAgent {
	return a.ScriptUpdate(acp.NewNotificationUpdate(acp.Notification{Text: text}))
}

// ScriptPermissionRequest enqueues a permission request offering the given
// options. The request ID is generated.
func (a *FakeAgent) ScriptPermissionRequest(options ...acp.PermissionOption) *FakeAgent {
	return a.ScriptUpdate(acp.NewPermissionUpdate(acp.PermissionRequest{
		ID:      uuid.NewString(),
		Options: options,
	}))
}

// ScriptToolCall enqueues one tool invocation. args is marshaled to JSON;
// pass a json.RawMessage to use it verbatim.
func (a *FakeAgent) ScriptToolCall(name string, args any) *FakeAgent {
	raw, err := marshalArgs(args)
	if err != nil {
		panic(fmt.Sprintf("acptest: marshal args for tool %s: %v", name, err))
	}
	return a.scriptStep(step{toolCalls: []ToolCall{{Name: name, Args: raw}}})
}

// ScriptParallelToolCalls enqueues tool invocations that are performed
// concurrently, for exercising per-tool serialization.
func (a *FakeAgent) ScriptParallelToolCalls(calls ...ToolCall) *FakeAgent {
	return a.scriptStep(step{toolCalls: calls})
}

// ScriptStop enqueues the session termination signal.
func (a *FakeAgent) ScriptStop(reason acp.StopReason) *FakeAgent {
	return a.ScriptUpdate(acp.NewStopUpdate(reason))
}

// ScriptUpdate enqueues an arbitrary update, including ones with no variant
// set to simulate event kinds the driver does not model.
func (a *FakeAgent) ScriptUpdate(update acp.Update) *FakeAgent {
	return a.scriptStep(step{update: &update})
}

// ScriptUpdateError enqueues a transport failure surfaced from NextUpdate.
func (a *FakeAgent) ScriptUpdateError(err error) *FakeAgent {
	return a.scriptStep(step{updateErr: err})
}

func (a *FakeAgent) scriptStep(s step) *FakeAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = append(a.script, s)
	return a
}

// SetNewSessionError makes NewSession fail with err.
func (a *FakeAgent) SetNewSessionError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.newSessionErr = err
}

// SetPromptError makes Prompt fail with err.
func (a *FakeAgent) SetPromptError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.promptErr = err
}

// Prompts returns the prompt texts submitted so far.
func (a *FakeAgent) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.prompts...)
}

// WorkingDirs returns the working directories sessions were scoped to.
func (a *FakeAgent) WorkingDirs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.workingDirs...)
}

// PermissionOutcomes returns the permission responses received so far.
func (a *FakeAgent) PermissionOutcomes() []acp.PermissionOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]acp.PermissionOutcome{}, a.outcomes...)
}

// ToolCallRecords returns the scripted tool invocations performed so far.
func (a *FakeAgent) ToolCallRecords() []ToolCallRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ToolCallRecord{}, a.toolCalls...)
}

// NewSession implements acp.Connection. When the params carry a tool server,
// it is connected over an in-memory MCP transport so scripted tool calls hit
// the real server machinery.
func (a *FakeAgent) NewSession(ctx context.Context, params acp.SessionParams) (acp.Session, error) {
	a.mu.Lock()
	err := a.newSessionErr
	a.workingDirs = append(a.workingDirs, params.WorkingDir)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	session := &fakeSession{agent: a}

	if params.ToolServer != nil {
		clientTransport, serverTransport := mcp.NewInMemoryTransports()
		serverSession, err := params.ToolServer.Connect(ctx, serverTransport, nil)
		if err != nil {
			return nil, fmt.Errorf("connect tool server: %w", err)
		}
		client := mcp.NewClient(&mcp.Implementation{Name: "acptest", Version: "0.1.0"}, nil)
		clientSession, err := client.Connect(ctx, clientTransport, nil)
		if err != nil {
			return nil, fmt.Errorf("connect tool client: %w", err)
		}
		session.serverSession = serverSession
		session.clientSession = clientSession
	}

	return session, nil
}

type fakeSession struct {
	agent         *FakeAgent
	serverSession *mcp.ServerSession
	clientSession *mcp.ClientSession
}

func (s *fakeSession) Prompt(ctx context.Context, text string) error {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	if s.agent.promptErr != nil {
		return s.agent.promptErr
	}
	s.agent.prompts = append(s.agent.prompts, text)
	return nil
}

func (s *fakeSession) NextUpdate(ctx context.Context) (acp.Update, error) {
	for {
		s.agent.mu.Lock()
		if len(s.agent.script) == 0 {
			s.agent.mu.Unlock()
			// Script exhausted without a stop signal: stall like an
			// unresponsive agent until the caller gives up.
			<-ctx.Done()
			return acp.Update{}, ctx.Err()
		}
		next := s.agent.script[0]
		s.agent.script = s.agent.script[1:]
		s.agent.mu.Unlock()

		if next.updateErr != nil {
			return acp.Update{}, next.updateErr
		}
		if len(next.toolCalls) > 0 {
			if err := s.performToolCalls(ctx, next.toolCalls); err != nil {
				return acp.Update{}, err
			}
			continue
		}
		return *next.update, nil
	}
}

func (s *fakeSession) performToolCalls(ctx context.Context, calls []ToolCall) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, call := range calls {
		g.Go(func() error {
			record := ToolCallRecord{Name: call.Name, Args: call.Args}
			if s.clientSession == nil {
				record.Err = errors.New("session has no tool server")
			} else {
				record.Result, record.Err = s.clientSession.CallTool(gctx, &mcp.CallToolParams{
					Name:      call.Name,
					Arguments: call.Args,
				})
			}
			s.agent.mu.Lock()
			s.agent.toolCalls = append(s.agent.toolCalls, record)
			s.agent.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (s *fakeSession) RespondPermission(ctx context.Context, requestID string, outcome acp.PermissionOutcome) error {
	if requestID == "" {
		return errors.New("respond permission: empty request id")
	}
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	s.agent.outcomes = append(s.agent.outcomes, outcome)
	return nil
}

func (s *fakeSession) Close() error {
	if s.clientSession != nil {
		if err := s.clientSession.Close(); err != nil {
			return err
		}
	}
	if s.serverSession != nil {
		s.serverSession.Wait()
	}
	return nil
}

func marshalArgs(args any) (json.RawMessage, error) {
	if raw, ok := args.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
