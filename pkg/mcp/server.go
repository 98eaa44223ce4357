// Package mcp exposes the execution stack as MCP tools for an external
// LLM-driving agent: start, continue_compiled_script, finish_nl_script, and
// status.
package mcp

import (
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ormasoftchile/maestro/pkg/engine"
	"github.com/ormasoftchile/maestro/pkg/executor"
	"github.com/ormasoftchile/maestro/pkg/script"
)

// Config wires the service's collaborators.
type Config struct {
	Resolver script.Resolver
	Exec     executor.AutoExecutor
	// StatePath is where the session snapshot is persisted between calls so
	// a suspension in one process can be resumed in another. Empty disables
	// persistence.
	StatePath string
	Tracer    *engine.Tracer
}

// Service carries the execution stack across tool calls.
type Service struct {
	mu  sync.Mutex
	cfg Config
	mgr *engine.Manager
}

// NewService creates the tool service.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// NewServer creates an MCP server with the maestro tools registered.
func NewServer(version string, cfg Config) *server.MCPServer {
	svc := NewService(cfg)

	s := server.NewMCPServer(
		"maestro",
		version,
		server.WithToolCapabilities(true),
	)

	// Register tools
	s.AddTool(
		mcp.NewTool("start",
			mcp.WithDescription("Start a script. Runs auto steps until the first step that needs you, then reports what to do."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Script identifier (namespaces via ':', e.g. 'git:extract_pr')")),
			mcp.WithString("arguments", mcp.Description("Argument string passed to the script")),
			mcp.WithString("working_dir", mcp.Description("Directory auto steps execute in (defaults to the server's cwd)")),
		),
		svc.HandleStart,
	)

	s.AddTool(
		mcp.NewTool("continue_compiled_script",
			mcp.WithDescription("Resume after performing the pending LLM step. Supply exactly the declared output keys."),
			mcp.WithObject("outputs", mcp.Description("Mapping of declared output keys to values (empty object when the step declares none)")),
		),
		svc.HandleContinue,
	)

	s.AddTool(
		mcp.NewTool("finish_nl_script",
			mcp.WithDescription("Signal that the pending natural-language script has been fully carried out."),
		),
		svc.HandleFinish,
	)

	s.AddTool(
		mcp.NewTool("status",
			mcp.WithDescription("Read-only: current stack depth, stack path, and top frame state."),
		),
		svc.HandleStatus,
	)

	return s
}

// manager returns the live stack manager, restoring it from the persisted
// session snapshot when a previous process left one behind.
func (s *Service) manager() (*engine.Manager, error) {
	if s.mgr != nil {
		return s.mgr, nil
	}
	if s.cfg.StatePath != "" {
		if _, err := os.Stat(s.cfg.StatePath); err == nil {
			snap, err := engine.LoadSnapshot(s.cfg.StatePath)
			if err != nil {
				return nil, err
			}
			mgr, err := engine.Restore(snap, s.cfg.Resolver, s.cfg.Exec, s.options()...)
			if err != nil {
				return nil, err
			}
			s.mgr = mgr
			return s.mgr, nil
		}
	}
	s.mgr = engine.NewManager(s.cfg.Resolver, s.cfg.Exec, s.options()...)
	return s.mgr, nil
}

func (s *Service) options() []engine.Option {
	if s.cfg.Tracer != nil {
		return []engine.Option{engine.WithTracer(s.cfg.Tracer)}
	}
	return nil
}

// persist saves or clears the session snapshot after a mutating call.
func (s *Service) persist(done bool) error {
	if s.cfg.StatePath == "" {
		return nil
	}
	if done || s.mgr.Depth() == 0 {
		err := os.Remove(s.cfg.StatePath)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return engine.SaveSnapshot(s.mgr.Snapshot(), s.cfg.StatePath)
}
