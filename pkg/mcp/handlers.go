package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// HandleStart implements the start tool.
func (s *Service) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := req.GetArguments()
	name, _ := args["name"].(string)
	if name == "" {
		return errorResult("name argument is required"), nil
	}
	scriptArgs, _ := args["arguments"].(string)
	workDir, _ := args["working_dir"].(string)

	mgr, err := s.manager()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	out, err := mgr.Start(ctx, name, scriptArgs, workDir)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := s.persist(out.Done); err != nil {
		return errorResult(fmt.Sprintf("persist session: %s", err)), nil
	}
	return outcomeResult(out), nil
}

// HandleContinue implements the continue_compiled_script tool.
func (s *Service) HandleContinue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outputs := make(map[string]string)
	if raw, ok := req.GetArguments()["outputs"].(map[string]any); ok {
		for k, v := range raw {
			outputs[k] = fmt.Sprint(v)
		}
	}

	mgr, err := s.manager()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	out, err := mgr.ContinueCompiled(ctx, outputs)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := s.persist(out.Done); err != nil {
		return errorResult(fmt.Sprintf("persist session: %s", err)), nil
	}
	return outcomeResult(out), nil
}

// HandleFinish implements the finish_nl_script tool.
func (s *Service) HandleFinish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mgr, err := s.manager()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	out, err := mgr.FinishNL(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := s.persist(out.Done); err != nil {
		return errorResult(fmt.Sprintf("persist session: %s", err)), nil
	}
	return outcomeResult(out), nil
}

// HandleStatus implements the status tool. Read-only: it never advances the
// stack or drains history.
func (s *Service) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mgr, err := s.manager()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	data, _ := json.MarshalIndent(mgr.Status(), "", "  ")
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
