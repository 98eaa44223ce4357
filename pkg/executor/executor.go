// Package executor runs auto steps and defines the pluggable execution
// contract shared by the live and replay implementations.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ormasoftchile/maestro/pkg/script"
)

// Chunk is a timestamped fragment of streamed output produced while an auto
// step runs. Chunks are ordered within a step and finalized when it completes.
type Chunk struct {
	Time time.Time `yaml:"time" json:"time"`
	Text string    `yaml:"text" json:"text"`
}

// Result is the terminal outcome of one auto-step invocation: success with
// named outputs, or failure with error detail. A nonzero exit code is a
// failed Result, never a Go error.
type Result struct {
	Success     bool              `yaml:"success"      json:"success"`
	ExitCode    int               `yaml:"exit_code"    json:"exit_code"`
	Outputs     map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	ErrorDetail string            `yaml:"error,omitempty"   json:"error,omitempty"`
}

// StepExecution is the full record of one invocation: the ordered chunk
// sequence followed by exactly one terminal result.
type StepExecution struct {
	Chunks []Chunk `yaml:"chunks,omitempty" json:"chunks,omitempty"`
	Result Result  `yaml:"result"           json:"result"`
}

// Output joins the chunk texts in order, one line per chunk.
func (se *StepExecution) Output() string {
	lines := make([]string, len(se.Chunks))
	for i, c := range se.Chunks {
		lines[i] = c.Text
	}
	return strings.Join(lines, "\n")
}

// AutoExecutor is the pluggable strategy that performs one auto step.
// Implementations: Live (real execution) and cassette replay. The executor
// must fully complete within one call — it never straddles a suspension.
type AutoExecutor interface {
	ExecuteStep(ctx context.Context, step *script.Step, workDir string) (*StepExecution, error)
}

// Live runs auto steps for real through the shell, streaming stdout and
// stderr lines as chunks in arrival order. The streams are read separately
// so capture sources keep their meaning; interleaving across the two is
// best-effort.
type Live struct {
	// Shell overrides the shell binary; defaults to "sh".
	Shell string
}

// NewLive creates a live executor.
func NewLive() *Live {
	return &Live{}
}

// ExecuteStep implements AutoExecutor.
func (l *Live) ExecuteStep(ctx context.Context, step *script.Step, workDir string) (*StepExecution, error) {
	shell := l.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", step.Run) //#nosec G204 -- command comes from a script authored by the operator
	cmd.Dir = workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", step.Run, err)
	}

	exec0 := &StepExecution{}
	streams := map[string]*strings.Builder{"stdout": {}, "stderr": {}}
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		scanErr error
	)
	scan := func(r io.Reader, name string) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := normalizeLineEndings(scanner.Text())
			mu.Lock()
			exec0.Chunks = append(exec0.Chunks, Chunk{
				Time: time.Now().UTC(),
				Text: line,
			})
			b := streams[name]
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(line)
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil {
			mu.Lock()
			if scanErr == nil {
				scanErr = fmt.Errorf("read %s of %q: %w", name, step.Run, err)
			}
			mu.Unlock()
		}
	}
	wg.Add(2)
	go scan(stdout, "stdout")
	go scan(stderr, "stderr")
	wg.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("exec %q: %w", step.Run, err)
		}
	}
	if scanErr != nil {
		return nil, scanErr
	}

	exec0.Result = Result{
		Success:  exitCode == 0,
		ExitCode: exitCode,
	}
	if exitCode != 0 {
		exec0.Result.ErrorDetail = fmt.Sprintf("command %q exited with code %d", step.Run, exitCode)
	} else {
		exec0.Result.Outputs = applyCapture(step.Capture, streams)
	}
	return exec0, nil
}

// applyCapture maps each declared capture key to the trimmed text of its
// declared source stream. An empty source defaults to stdout.
func applyCapture(capture map[string]string, streams map[string]*strings.Builder) map[string]string {
	if len(capture) == 0 {
		return nil
	}
	outputs := make(map[string]string, len(capture))
	for key, from := range capture {
		if from == "" {
			from = "stdout"
		}
		if b, ok := streams[from]; ok {
			outputs[key] = strings.TrimSpace(b.String())
		} else {
			outputs[key] = ""
		}
	}
	return outputs
}

// normalizeLineEndings strips the \r a CRLF-producing command leaves at the
// end of each scanned line.
func normalizeLineEndings(s string) string {
	return strings.TrimSuffix(s, "\r")
}
