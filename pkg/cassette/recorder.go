package cassette

import (
	"context"

	"github.com/ormasoftchile/maestro/pkg/executor"
	"github.com/ormasoftchile/maestro/pkg/script"
)

// Recorder wraps a live executor and captures every execution into a
// cassette for later replay.
type Recorder struct {
	inner    executor.AutoExecutor
	Cassette *Cassette
}

// NewRecorder creates a recording wrapper around an existing executor.
func NewRecorder(inner executor.AutoExecutor) *Recorder {
	return &Recorder{inner: inner, Cassette: &Cassette{}}
}

// ExecuteStep delegates to the inner executor and records the execution.
// Failed results are recorded too; only transport-level errors are not.
func (r *Recorder) ExecuteStep(ctx context.Context, step *script.Step, workDir string) (*executor.StepExecution, error) {
	se, err := r.inner.ExecuteStep(ctx, step, workDir)
	if err != nil {
		return nil, err
	}
	r.Cassette.Append(Recording{
		StepID:  step.ID,
		Command: step.Run,
		Chunks:  se.Chunks,
		Result:  se.Result,
	})
	return se, nil
}

// Flush writes the accumulated cassette to a file.
func (r *Recorder) Flush(path string) error {
	return r.Cassette.SaveFile(path)
}
