// Package main provides the maestro-mcp binary — the stdio MCP server an
// AI agent drives scripts through.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ormasoftchile/maestro/pkg/cassette"
	"github.com/ormasoftchile/maestro/pkg/engine"
	"github.com/ormasoftchile/maestro/pkg/executor"
	mmcp "github.com/ormasoftchile/maestro/pkg/mcp"
	"github.com/ormasoftchile/maestro/pkg/script"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	scriptsDir := flag.String("scripts-dir", "", "extra script directory, searched before the defaults")
	statePath := flag.String("state", filepath.Join(".maestro", "session.json"), "session snapshot file ('' disables cross-process resume)")
	cassettePath := flag.String("cassette", "", "replay auto steps from this cassette instead of executing")
	recordPath := flag.String("record", "", "record auto-step executions to this cassette on exit")
	tracePath := flag.String("trace", "", "append JSONL trace events to this file")
	flag.Parse()

	cfg, recorder, err := buildConfig(*scriptsDir, *statePath, *cassettePath, *recordPath, *tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *statePath != "" {
		if err := os.MkdirAll(filepath.Dir(*statePath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	s := mmcp.NewServer(version, cfg)
	serveErr := server.ServeStdio(s)

	if recorder != nil {
		if err := recorder.Flush(*recordPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: record cassette: %v\n", err)
			os.Exit(1)
		}
	}
	if serveErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", serveErr)
		os.Exit(1)
	}
}

func buildConfig(scriptsDir, statePath, cassettePath, recordPath, tracePath string) (mmcp.Config, *cassette.Recorder, error) {
	var dirs []string
	if scriptsDir != "" {
		dirs = append(dirs, scriptsDir)
	}
	dirs = append(dirs, filepath.Join(".maestro", "scripts"))
	if home := os.Getenv("MAESTRO_HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, "scripts"))
	}

	cfg := mmcp.Config{
		Resolver:  script.NewDirResolver(dirs...),
		StatePath: statePath,
	}

	if cassettePath != "" && recordPath != "" {
		return cfg, nil, fmt.Errorf("-cassette and -record are mutually exclusive")
	}
	var recorder *cassette.Recorder
	switch {
	case cassettePath != "":
		c, err := cassette.LoadFile(cassettePath)
		if err != nil {
			return cfg, nil, err
		}
		cfg.Exec = cassette.NewReplay(c)
	case recordPath != "":
		recorder = cassette.NewRecorder(executor.NewLive())
		cfg.Exec = recorder
	default:
		cfg.Exec = executor.NewLive()
	}

	if tracePath != "" {
		tracer, err := engine.NewFileTracer(tracePath, fmt.Sprintf("mcp-%d", os.Getpid()))
		if err != nil {
			return cfg, nil, err
		}
		cfg.Tracer = tracer
	}

	return cfg, recorder, nil
}
