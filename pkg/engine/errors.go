package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Failure describes why a script run failed. It is carried as data in run
// outcomes, not thrown: the interpreter receives auto-step failure as a
// terminal result and unwinds the stack with this tag attached. FrameDepth
// records the depth of the originating frame (1 = root) so a nested call's
// failure stays distinguishable from the parent's own after unwinding.
type Failure struct {
	ScriptName string `json:"script"`
	FrameDepth int    `json:"frame_depth"`
	StepID     string `json:"step_id,omitempty"`
	StepIndex  int    `json:"step_index"`
	Detail     string `json:"detail"`
}

func (f *Failure) String() string {
	return fmt.Sprintf("script %q failed at step %d (%s): %s (frame depth %d)",
		f.ScriptName, f.StepIndex, f.StepID, f.Detail, f.FrameDepth)
}

// ProtocolError reports a caller/LLM desynchronization: a resumption method
// invoked against a frame not in the matching suspended state, or a resumed
// outputs mapping whose keys do not match the declared expected keys. The
// stack is left unchanged so a corrected call can be retried.
type ProtocolError struct {
	Op            string   // operation that was invoked
	ExpectedState State    // state the operation requires, if state mismatch
	ActualState   State    // actual top-frame state ("" when stack is empty)
	ExpectedKeys  []string // declared output keys, if key mismatch
	ActualKeys    []string // supplied output keys, if key mismatch
	Detail        string
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "protocol violation in %s", e.Op)
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.ExpectedState != "" {
		fmt.Fprintf(&b, ": top frame is %q, operation requires %q", e.ActualState, e.ExpectedState)
	}
	if e.ExpectedKeys != nil || e.ActualKeys != nil {
		fmt.Fprintf(&b, ": expected output keys %v, got %v",
			sortedCopy(e.ExpectedKeys), sortedCopy(e.ActualKeys))
	}
	return b.String()
}

func sortedCopy(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}
