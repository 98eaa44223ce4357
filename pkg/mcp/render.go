package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/ormasoftchile/maestro/pkg/engine"
)

// outcomeResult renders a run outcome as Markdown the driving agent reads:
// the activity since it last had control, then either what to do next or the
// final result. Failed completions are flagged as tool errors.
func outcomeResult(out *engine.Outcome) *mcp.CallToolResult {
	var b strings.Builder
	renderHistory(&b, out.History)
	if out.Suspension != nil {
		renderHistory(&b, out.Suspension.History)
		renderSuspension(&b, out.Suspension)
		return textResult(b.String())
	}
	if out.Failure != nil {
		fmt.Fprintf(&b, "## Script Failed\n\n%s\n", out.Failure.String())
		if len(out.Outputs) > 0 {
			b.WriteString("\nPartial outputs:\n")
			renderOutputs(&b, out.Outputs)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(b.String())},
			IsError: true,
		}
	}
	fmt.Fprintf(&b, "## All Steps Completed\n\nRan %d steps.\n", out.StepsRun)
	if len(out.Outputs) > 0 {
		b.WriteString("\nOutputs:\n")
		renderOutputs(&b, out.Outputs)
	}
	return textResult(b.String())
}

func renderSuspension(b *strings.Builder, s *engine.Suspension) {
	switch s.Kind {
	case engine.SuspendNlScript:
		fmt.Fprintf(b, "## Carry Out This Script\n\n%s\n", strings.TrimRight(s.Instruction, "\n"))
		fmt.Fprintf(b, "\nStack: `%s`\n", s.StackPath)
		b.WriteString("\nWhen the whole script is done, call `finish_nl_script`.\n")
	default:
		fmt.Fprintf(b, "## Next Step\n\n%s\n", strings.TrimRight(s.Instruction, "\n"))
		if len(s.Expects) > 0 {
			b.WriteString("\nReport these outputs:\n")
			keys := make([]string, 0, len(s.Expects))
			for k := range s.Expects {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if desc := s.Expects[k]; desc != "" {
					fmt.Fprintf(b, "- `%s`: %s\n", k, desc)
				} else {
					fmt.Fprintf(b, "- `%s`\n", k)
				}
			}
		}
		fmt.Fprintf(b, "\nStack: `%s`\n", s.StackPath)
		b.WriteString("\nWhen done, call `continue_compiled_script` with exactly these output keys.\n")
	}
}

func renderHistory(b *strings.Builder, entries []engine.Entry) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("### Steps executed:\n\n")
	for _, e := range entries {
		switch e.Kind {
		case engine.EntrySkip:
			fmt.Fprintf(b, "- `%s[%d]`: ~ skipped `%s`\n", e.ScriptName, e.StepIndex, e.Command)
		case engine.EntryCall:
			fmt.Fprintf(b, "- `%s[%d]`: %s %s\n", e.ScriptName, e.StepIndex, mark(e.Result.Success), e.Summary)
		default:
			fmt.Fprintf(b, "- `%s[%d]`: %s `%s`\n", e.ScriptName, e.StepIndex, mark(e.Result.Success), e.Command)
			if out := chunkText(e); out != "" {
				fmt.Fprintf(b, "\n  ```\n%s\n  ```\n", indent(out, "  "))
			}
			if !e.Result.Success && e.Result.ErrorDetail != "" {
				fmt.Fprintf(b, "  %s\n", e.Result.ErrorDetail)
			}
		}
	}
	b.WriteString("\n")
}

func renderOutputs(b *strings.Builder, outputs map[string]string) {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- `%s`: %s\n", k, outputs[k])
	}
}

func mark(success bool) string {
	if success {
		return "✓"
	}
	return "✗"
}

func chunkText(e engine.Entry) string {
	lines := make([]string, len(e.Chunks))
	for i, c := range e.Chunks {
		lines[i] = c.Text
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
