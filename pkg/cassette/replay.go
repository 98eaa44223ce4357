package cassette

import (
	"context"
	"errors"
	"fmt"

	"github.com/ormasoftchile/maestro/pkg/executor"
	"github.com/ormasoftchile/maestro/pkg/script"
)

// ErrMiss marks a replay request with no matching recording. It indicates a
// fixture gap, a distinct condition from a live action failure.
var ErrMiss = errors.New("cassette miss")

// MissError carries expected-vs-requested detail for a cassette miss.
type MissError struct {
	StepID  string
	Command string
	Reason  string // "exhausted" or "mismatch"
	Want    string // next recording, when Reason is "mismatch"
}

func (e *MissError) Error() string {
	if e.Reason == "exhausted" {
		return fmt.Sprintf("cassette miss: no recording left for step %q (%s)", e.StepID, e.Command)
	}
	return fmt.Sprintf("cassette miss: step %q (%s) does not match next recording %s", e.StepID, e.Command, e.Want)
}

func (e *MissError) Unwrap() error { return ErrMiss }

// Replay implements executor.AutoExecutor against a recorded cassette.
// Recordings are consumed strictly in order: the next recording must match
// the requested step id and command, or the replay reports a miss.
type Replay struct {
	cassette *Cassette
	cursor   int
}

// NewReplay creates a replay executor over a cassette.
func NewReplay(c *Cassette) *Replay {
	return &Replay{cassette: c}
}

// ExecuteStep implements executor.AutoExecutor. It has no side effects.
func (r *Replay) ExecuteStep(ctx context.Context, step *script.Step, workDir string) (*executor.StepExecution, error) {
	if r.cursor >= len(r.cassette.Recordings) {
		return nil, &MissError{StepID: step.ID, Command: step.Run, Reason: "exhausted"}
	}
	rec := r.cassette.Recordings[r.cursor]
	if rec.StepID != step.ID || rec.Command != step.Run {
		return nil, &MissError{
			StepID:  step.ID,
			Command: step.Run,
			Reason:  "mismatch",
			Want:    fmt.Sprintf("%q (%s)", rec.StepID, rec.Command),
		}
	}
	r.cursor++
	return &executor.StepExecution{Chunks: rec.Chunks, Result: rec.Result}, nil
}

// Remaining reports how many recordings have not been consumed.
func (r *Replay) Remaining() int {
	return len(r.cassette.Recordings) - r.cursor
}
