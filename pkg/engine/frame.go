package engine

import (
	"fmt"

	"github.com/ormasoftchile/maestro/pkg/script"
)

// State is the interpreter state of one frame.
type State string

const (
	// StateReady means the frame can be advanced through its step sequence.
	StateReady State = "ready"
	// StateSuspendedOnLlmStep means the frame is waiting for an external
	// agent to perform the llm step at the cursor and resume with outputs.
	StateSuspendedOnLlmStep State = "suspended_on_llm_step"
	// StateSuspendedOnNlScript means the frame holds a natural-language
	// script being carried out wholesale by the external agent.
	StateSuspendedOnNlScript State = "suspended_on_nl_script"
	// StateCompleted means the frame's script finished (or failed) and the
	// frame is about to pop.
	StateCompleted State = "completed"
)

// Frame is one running script interpreter instance on the execution stack.
type Frame struct {
	Script  *script.Script
	Args    string
	Cursor  int // index into Steps; -1 for natural-language frames
	State   State
	Outputs map[string]string
	History History
	Failure *Failure

	stepsRun int // executed step count, reported in the call summary
}

// newFrame constructs a frame in its initial state. Compiled scripts start
// Ready at step 0; natural-language scripts suspend immediately — there is
// nothing to run before the agent takes over.
func newFrame(sc *script.Script, args string) *Frame {
	f := &Frame{
		Script:  sc,
		Args:    args,
		Outputs: make(map[string]string),
	}
	if sc.Kind == script.KindNatural {
		f.Cursor = -1
		f.State = StateSuspendedOnNlScript
	} else {
		f.Cursor = 0
		f.State = StateReady
	}
	return f
}

// Name returns the frame's script identifier.
func (f *Frame) Name() string {
	return f.Script.Meta.Name
}

// PathSegment renders this frame for stack-path strings: "name[2]" for
// compiled frames, "name[nl]" for natural-language frames.
func (f *Frame) PathSegment() string {
	if f.Cursor < 0 {
		return f.Name() + "[nl]"
	}
	return fmt.Sprintf("%s[%d]", f.Name(), f.Cursor)
}

// currentStep returns the step at the cursor, or nil when the cursor is past
// the end of the sequence.
func (f *Frame) currentStep() *script.Step {
	if f.Cursor < 0 || f.Cursor >= len(f.Script.Steps) {
		return nil
	}
	return &f.Script.Steps[f.Cursor]
}

// completeFailed marks the frame failed with the given tag.
func (f *Frame) completeFailed(failure *Failure) {
	f.Failure = failure
	f.State = StateCompleted
}
