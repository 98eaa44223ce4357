package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/ormasoftchile/maestro/pkg/executor"
	"github.com/ormasoftchile/maestro/pkg/script"
)

// echoExec succeeds every auto step without running anything.
type echoExec struct{}

func (echoExec) ExecuteStep(ctx context.Context, step *script.Step, workDir string) (*executor.StepExecution, error) {
	return &executor.StepExecution{
		Chunks: []executor.Chunk{{Text: "ran " + step.ID}},
		Result: executor.Result{Success: true},
	}, nil
}

func testResolver() script.MapResolver {
	return script.MapResolver{
		"release": {
			APIVersion: script.APIVersion,
			Meta:       script.Meta{Name: "release"},
			Kind:       script.KindCompiled,
			Steps: []script.Step{
				{ID: "tag", Type: script.StepAuto, Run: "git tag"},
				{ID: "notes", Type: script.StepLlm, Prompt: "Write release notes.",
					Expects: map[string]string{"notes": "release notes body"}},
			},
		},
	}
}

func callTool(t *testing.T, svc *Service,
	handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error),
	args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Content[0])
	}
	return tc.Text
}

func TestHandleStart_MissingName(t *testing.T) {
	svc := NewService(Config{Resolver: testResolver(), Exec: echoExec{}})
	result := callTool(t, svc, svc.HandleStart, map[string]any{})
	if !result.IsError {
		t.Error("expected error for missing name")
	}
}

func TestHandleStart_UnknownScript(t *testing.T) {
	svc := NewService(Config{Resolver: testResolver(), Exec: echoExec{}})
	result := callTool(t, svc, svc.HandleStart, map[string]any{"name": "ghost"})
	if !result.IsError {
		t.Error("expected error for unknown script")
	}
	if !strings.Contains(resultText(t, result), "not found") {
		t.Errorf("error text = %q, want not-found mention", resultText(t, result))
	}
}

func TestStartContinueRoundTrip(t *testing.T) {
	svc := NewService(Config{Resolver: testResolver(), Exec: echoExec{}})

	result := callTool(t, svc, svc.HandleStart, map[string]any{"name": "release"})
	if result.IsError {
		t.Fatalf("start failed: %s", resultText(t, result))
	}
	text := resultText(t, result)
	for _, want := range []string{"### Steps executed:", "`release[0]`", "Write release notes.", "`notes`"} {
		if !strings.Contains(text, want) {
			t.Errorf("start response missing %q:\n%s", want, text)
		}
	}

	// Wrong keys are rejected; the run stays resumable.
	bad := callTool(t, svc, svc.HandleContinue, map[string]any{
		"outputs": map[string]any{"wrong": "x"},
	})
	if !bad.IsError {
		t.Error("expected protocol violation for wrong output keys")
	}

	done := callTool(t, svc, svc.HandleContinue, map[string]any{
		"outputs": map[string]any{"notes": "v1.0 highlights"},
	})
	if done.IsError {
		t.Fatalf("continue failed: %s", resultText(t, done))
	}
	text = resultText(t, done)
	if !strings.Contains(text, "## All Steps Completed") {
		t.Errorf("completion response missing header:\n%s", text)
	}
	if !strings.Contains(text, "v1.0 highlights") {
		t.Errorf("completion response missing outputs:\n%s", text)
	}
}

func TestHandleFinish_WrongState(t *testing.T) {
	svc := NewService(Config{Resolver: testResolver(), Exec: echoExec{}})
	callTool(t, svc, svc.HandleStart, map[string]any{"name": "release"})

	result := callTool(t, svc, svc.HandleFinish, map[string]any{})
	if !result.IsError {
		t.Error("expected protocol violation finishing an llm suspension")
	}
	if !strings.Contains(resultText(t, result), "protocol violation") {
		t.Errorf("error text = %q", resultText(t, result))
	}
}

func TestHandleStatus(t *testing.T) {
	svc := NewService(Config{Resolver: testResolver(), Exec: echoExec{}})
	callTool(t, svc, svc.HandleStart, map[string]any{"name": "release"})

	result := callTool(t, svc, svc.HandleStatus, map[string]any{})
	if result.IsError {
		t.Fatalf("status failed: %s", resultText(t, result))
	}
	text := resultText(t, result)
	for _, want := range []string{`"depth": 1`, `"top_script": "release"`, `"top_state": "suspended_on_llm_step"`} {
		if !strings.Contains(text, want) {
			t.Errorf("status missing %q:\n%s", want, text)
		}
	}
}

func TestSessionPersistsAcrossServices(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "session.json")

	first := NewService(Config{Resolver: testResolver(), Exec: echoExec{}, StatePath: statePath})
	result := callTool(t, first, first.HandleStart, map[string]any{"name": "release"})
	if result.IsError {
		t.Fatalf("start failed: %s", resultText(t, result))
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("session snapshot not written: %v", err)
	}

	// A fresh service (a separate process in production) picks the run up.
	second := NewService(Config{Resolver: testResolver(), Exec: echoExec{}, StatePath: statePath})
	done := callTool(t, second, second.HandleContinue, map[string]any{
		"outputs": map[string]any{"notes": "from another process"},
	})
	if done.IsError {
		t.Fatalf("resumed continue failed: %s", resultText(t, done))
	}
	if !strings.Contains(resultText(t, done), "## All Steps Completed") {
		t.Errorf("resumed run did not complete:\n%s", resultText(t, done))
	}
	// Completion clears the persisted session.
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Errorf("session snapshot not cleared after completion (err=%v)", err)
	}
}

func TestFailureRendersAsError(t *testing.T) {
	resolver := script.MapResolver{
		"broken": {
			APIVersion: script.APIVersion,
			Meta:       script.Meta{Name: "broken"},
			Kind:       script.KindCompiled,
			Steps:      []script.Step{{ID: "boom", Type: script.StepAuto, Run: "false"}},
		},
	}
	svc := NewService(Config{Resolver: resolver, Exec: failExec{}})

	result := callTool(t, svc, svc.HandleStart, map[string]any{"name": "broken"})
	if !result.IsError {
		t.Error("failed script must surface as a tool error")
	}
	if !strings.Contains(resultText(t, result), "## Script Failed") {
		t.Errorf("response = %q", resultText(t, result))
	}
}

type failExec struct{}

func (failExec) ExecuteStep(ctx context.Context, step *script.Step, workDir string) (*executor.StepExecution, error) {
	return &executor.StepExecution{
		Result: executor.Result{Success: false, ExitCode: 1, ErrorDetail: "exit status 1"},
	}, nil
}
