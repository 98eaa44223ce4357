package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/ormasoftchile/maestro/pkg/cassette"
	"github.com/ormasoftchile/maestro/pkg/engine"
	"github.com/ormasoftchile/maestro/pkg/executor"
	"github.com/ormasoftchile/maestro/pkg/script"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	_ = godotenv.Load() // load .env if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Resumable hybrid-script execution engine",
	Long:  "maestro — runs hybrid scripts of deterministic and LLM-delegated steps, suspending where an agent must take over.",
}

// defaultResolver builds the standard lookup chain: project scripts first,
// then the home install.
func defaultResolver(extra []string) script.Resolver {
	dirs := append([]string(nil), extra...)
	dirs = append(dirs, filepath.Join(".maestro", "scripts"))
	if home := os.Getenv("MAESTRO_HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, "scripts"))
	}
	return script.NewDirResolver(dirs...)
}

// --- run ---

var (
	runArgs       string
	runWorkDir    string
	runScriptDirs []string
	runCassette   string
	runRecord     string
	runTrace      string
)

var runCmd = &cobra.Command{
	Use:   "run [script]",
	Short: "Run a script without an agent attached",
	Long: `Run a script to completion. Auto steps execute; reaching an llm step or
a natural-language script is an error here, since there is no agent to hand
control to — drive those through the MCP server instead.

With --cassette, auto steps replay from a recording instead of executing.
With --record, live executions are captured to a cassette for later replay.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	name := args[0]

	exec, recorder, err := buildExecutor()
	if err != nil {
		return err
	}

	var opts []engine.Option
	if runTrace != "" {
		tracer, err := engine.NewFileTracer(runTrace, name)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithTracer(tracer))
	}

	m := engine.NewManager(defaultResolver(runScriptDirs), exec, opts...)
	out, err := m.Start(context.Background(), name, runArgs, runWorkDir)
	if err != nil {
		return err
	}

	if out.Suspension != nil {
		return fmt.Errorf("script suspended on %s at %s: this command cannot drive %s steps — use the MCP server",
			out.Suspension.Kind, out.Suspension.StackPath, out.Suspension.Kind)
	}

	printHistory(out.History)

	if recorder != nil {
		if err := recorder.Flush(runRecord); err != nil {
			return fmt.Errorf("record cassette: %w", err)
		}
		fmt.Printf("  Cassette recorded: %s (%d recordings)\n", runRecord, len(recorder.Cassette.Recordings))
	}

	if out.Failure != nil {
		fmt.Fprintf(os.Stderr, "✗ %s\n", out.Failure.String())
		os.Exit(1)
	}
	fmt.Printf("✓ %s completed (%d steps)\n", name, out.StepsRun)
	for k, v := range out.Outputs {
		fmt.Printf("  %s = %s\n", k, v)
	}
	return nil
}

func buildExecutor() (executor.AutoExecutor, *cassette.Recorder, error) {
	if runCassette != "" && runRecord != "" {
		return nil, nil, fmt.Errorf("--cassette and --record are mutually exclusive")
	}
	if runCassette != "" {
		c, err := cassette.LoadFile(runCassette)
		if err != nil {
			return nil, nil, err
		}
		return cassette.NewReplay(c), nil, nil
	}
	if runRecord != "" {
		rec := cassette.NewRecorder(executor.NewLive())
		return rec, rec, nil
	}
	return executor.NewLive(), nil, nil
}

func printHistory(entries []engine.Entry) {
	for _, e := range entries {
		switch e.Kind {
		case engine.EntrySkip:
			fmt.Printf("  ○ %s[%d] skipped %s\n", e.ScriptName, e.StepIndex, e.Command)
		case engine.EntryCall:
			fmt.Printf("  → %s\n", e.Summary)
		default:
			mark := "✓"
			if !e.Result.Success {
				mark = "✗"
			}
			fmt.Printf("  %s %s[%d] %s\n", mark, e.ScriptName, e.StepIndex, e.Command)
		}
	}
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [script.yaml]",
	Short: "Validate a compiled-script YAML file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	sc, errs := script.ValidateFile(args[0])
	if script.HasErrors(errs) {
		n := 0
		for _, e := range errs {
			if e.Severity == "error" {
				n++
			}
		}
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", n)
		for i, e := range errs {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", n)
	}
	for _, e := range errs {
		fmt.Printf("⚠ [%s] %s\n", e.Phase, e.Message)
	}
	fmt.Printf("✓ %s is valid (%d steps)\n", sc.Meta.Name, len(sc.Steps))
	return nil
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the script JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := script.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		var out json.RawMessage = data
		formatted, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Println(string(data))
			return nil
		}
		fmt.Println(string(formatted))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("maestro %s (build: %s)\n", version, commit)
	},
}

func init() {
	runCmd.Flags().StringVar(&runArgs, "args", "", "Argument string passed to the script")
	runCmd.Flags().StringVar(&runWorkDir, "working-dir", "", "Directory auto steps execute in")
	runCmd.Flags().StringArrayVar(&runScriptDirs, "scripts-dir", nil, "Extra script directory (repeatable, searched first)")
	runCmd.Flags().StringVar(&runCassette, "cassette", "", "Replay auto steps from this cassette instead of executing")
	runCmd.Flags().StringVar(&runRecord, "record", "", "Record auto-step executions to this cassette file")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "Append JSONL trace events to this file")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
