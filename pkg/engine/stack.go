// Package engine implements the resumable script interpreter: a stack of
// per-script frames advanced step by step, suspending whenever an llm step
// or a natural-language script needs the external agent, and resumable in a
// later process from a serialized snapshot.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ormasoftchile/maestro/pkg/executor"
	"github.com/ormasoftchile/maestro/pkg/script"
)

// SuspensionKind tags what the interpreter is waiting on.
type SuspensionKind string

const (
	SuspendLlmStep  SuspensionKind = "llm-step"
	SuspendNlScript SuspensionKind = "nl-script"
)

// Suspension describes a yield point: everything the external agent needs to
// perform the pending work and resume.
type Suspension struct {
	Kind        SuspensionKind    `json:"kind"`
	ScriptName  string            `json:"script"`
	StepIndex   int               `json:"step_index"` // -1 for nl-script
	StackPath   string            `json:"stack_path"`
	Instruction string            `json:"instruction"`
	Expects     map[string]string `json:"expects,omitempty"` // llm-step only
	History     []Entry           `json:"history,omitempty"` // drained activity since last suspension
}

// Outcome is the result of one driving call (Start / ContinueCompiled /
// FinishNL): either a suspension or a final completion.
type Outcome struct {
	Done       bool              `json:"done"`
	Suspension *Suspension       `json:"suspension,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"` // root outputs on completion
	Failure    *Failure          `json:"failure,omitempty"` // set when the run failed
	History    []Entry           `json:"history,omitempty"` // drained activity on completion
	StepsRun   int               `json:"steps_run"`
}

// Status is a read-only snapshot of the stack, safe to call at any time.
type Status struct {
	Depth      int      `json:"depth"`
	StackPath  string   `json:"stack_path,omitempty"`
	TopScript  string   `json:"top_script,omitempty"`
	TopState   State    `json:"top_state,omitempty"`
	TopCursor  int      `json:"top_cursor"`
	OutputKeys []string `json:"output_keys,omitempty"` // top frame, sorted
}

// Manager owns one execution stack and drives it. At most one mutating call
// may be outstanding at a time; the caller's protocol enforces that.
type Manager struct {
	resolver script.Resolver
	exec     executor.AutoExecutor
	workDir  string
	frames   []*Frame
	tracer   *Tracer
	final    *Outcome // set when the stack empties
}

// Option configures a Manager.
type Option func(*Manager)

// WithTracer attaches a JSONL trace writer.
func WithTracer(t *Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// NewManager creates a stack manager over a resolver and an auto-step
// executor strategy (live, replay, or recording).
func NewManager(resolver script.Resolver, exec executor.AutoExecutor, opts ...Option) *Manager {
	m := &Manager{resolver: resolver, exec: exec}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Depth reports the current stack depth.
func (m *Manager) Depth() int { return len(m.frames) }

// Start resolves the named script, pushes the root frame, and runs until the
// first suspension or final completion. workDir is where auto steps execute;
// empty means the process working directory.
func (m *Manager) Start(ctx context.Context, name, args, workDir string) (*Outcome, error) {
	if len(m.frames) > 0 {
		return nil, &ProtocolError{
			Op:          "start",
			ActualState: m.top().State,
			Detail:      fmt.Sprintf("script %q is already in progress", m.top().Name()),
		}
	}
	sc, err := m.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	m.workDir = workDir
	m.final = nil
	m.push(newFrame(sc, args))
	m.emit(EventRunStarted, map[string]any{"script": sc.Meta.Name, "args": args})
	return m.run(ctx)
}

// ContinueCompiled resumes a frame suspended on an llm step. The supplied
// outputs mapping must carry exactly the step's declared expected keys.
func (m *Manager) ContinueCompiled(ctx context.Context, outputs map[string]string) (*Outcome, error) {
	f, err := m.requireTop("continue_compiled_script", StateSuspendedOnLlmStep)
	if err != nil {
		return nil, err
	}
	step := f.currentStep()
	if err := checkKeys("continue_compiled_script", step.Expects, outputs); err != nil {
		return nil, err
	}
	for k, v := range outputs {
		f.Outputs[k] = v
	}
	f.stepsRun++
	f.Cursor++
	f.State = StateReady
	m.emit(EventResumed, map[string]any{"script": f.Name(), "step_id": step.ID})
	return m.run(ctx)
}

// FinishNL resumes a frame suspended on a natural-language script. The agent
// is trusted to have carried out the whole script; the frame completes with
// nothing further to verify.
func (m *Manager) FinishNL(ctx context.Context) (*Outcome, error) {
	f, err := m.requireTop("finish_nl_script", StateSuspendedOnNlScript)
	if err != nil {
		return nil, err
	}
	f.stepsRun++
	f.State = StateCompleted
	m.emit(EventResumed, map[string]any{"script": f.Name()})
	return m.run(ctx)
}

// Status returns a read-only view of the stack without mutating anything.
func (m *Manager) Status() Status {
	if len(m.frames) == 0 {
		return Status{TopCursor: -1}
	}
	f := m.top()
	keys := make([]string, 0, len(f.Outputs))
	for k := range f.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Status{
		Depth:      len(m.frames),
		StackPath:  m.stackPath(),
		TopScript:  f.Name(),
		TopState:   f.State,
		TopCursor:  f.Cursor,
		OutputKeys: keys,
	}
}

// ---------------------------------------------------------------------------
// Transition algorithm
// ---------------------------------------------------------------------------

// run applies the transition algorithm to the top frame until the stack
// suspends or empties.
func (m *Manager) run(ctx context.Context) (*Outcome, error) {
	for len(m.frames) > 0 {
		f := m.top()
		switch f.State {
		case StateCompleted:
			m.pop()
		case StateSuspendedOnLlmStep, StateSuspendedOnNlScript:
			return m.suspend(f), nil
		case StateReady:
			if err := m.step(ctx, f); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("frame %q in unknown state %q", f.Name(), f.State)
		}
	}
	out := m.final
	m.final = nil
	m.emit(EventRunCompleted, map[string]any{
		"failed":    out.Failure != nil,
		"steps_run": out.StepsRun,
	})
	return out, nil
}

// step performs one transition on a Ready frame.
func (m *Manager) step(ctx context.Context, f *Frame) error {
	step := f.currentStep()
	if step == nil {
		f.State = StateCompleted
		return nil
	}

	matched, err := evalGuard(step.When, f.Outputs)
	if err != nil {
		return fmt.Errorf("step %q: %w", step.Label(), err)
	}
	if !matched {
		f.History.Record(Entry{
			Kind:       EntrySkip,
			ScriptName: f.Name(),
			StepIndex:  f.Cursor,
			StepID:     step.ID,
			Command:    step.Run,
			Result:     executor.Result{Success: true},
		})
		f.Cursor++
		return nil
	}

	switch step.Type {
	case script.StepAuto:
		return m.runAuto(ctx, f, step)
	case script.StepLlm:
		f.State = StateSuspendedOnLlmStep
		return nil
	case script.StepCall:
		sc, err := m.resolver.Resolve(step.Script)
		if err != nil {
			return fmt.Errorf("call step %q: %w", step.Label(), err)
		}
		child := newFrame(sc, step.Args)
		m.push(child)
		m.emit(EventFramePushed, map[string]any{"script": sc.Meta.Name, "depth": len(m.frames)})
		return nil
	default:
		return fmt.Errorf("step %q: unknown type %q", step.Label(), step.Type)
	}
}

// runAuto executes one auto step and folds its outcome into the frame.
// A failed terminal result completes the frame failed; it is data, not error.
func (m *Manager) runAuto(ctx context.Context, f *Frame, step *script.Step) error {
	se, err := m.exec.ExecuteStep(ctx, step, m.workDir)
	if err != nil {
		// Transport-level error (cassette miss, unrunnable command). The
		// frame stays Ready at the cursor; the caller decides what to do.
		return fmt.Errorf("auto step %q: %w", step.Label(), err)
	}

	f.History.Record(Entry{
		Kind:       EntryAuto,
		ScriptName: f.Name(),
		StepIndex:  f.Cursor,
		StepID:     step.ID,
		Command:    step.Run,
		Chunks:     se.Chunks,
		Result:     se.Result,
	})
	f.stepsRun++
	m.emit(EventStepCompleted, map[string]any{
		"script":  f.Name(),
		"step_id": step.ID,
		"success": se.Result.Success,
	})

	if !se.Result.Success {
		f.completeFailed(&Failure{
			ScriptName: f.Name(),
			FrameDepth: len(m.frames),
			StepID:     step.ID,
			StepIndex:  f.Cursor,
			Detail:     se.Result.ErrorDetail,
		})
		return nil
	}

	for k, v := range se.Result.Outputs {
		f.Outputs[k] = v
	}
	f.Cursor++
	return nil
}

// pop removes the completed top frame. The child's un-drained history moves
// into the parent ahead of the call marker, so nothing that ran inside the
// callee is lost; a failed child completes the parent failed with the
// original failure tag intact.
func (m *Manager) pop() {
	child := m.top()
	m.frames = m.frames[:len(m.frames)-1]
	m.emit(EventFramePopped, map[string]any{
		"script": child.Name(),
		"failed": child.Failure != nil,
	})

	if len(m.frames) == 0 {
		m.final = &Outcome{
			Done:     true,
			Outputs:  child.Outputs,
			Failure:  child.Failure,
			History:  child.History.Drain(),
			StepsRun: child.stepsRun,
		}
		return
	}

	parent := m.top()
	parent.History.Extend(child.History.Drain())
	parent.History.Record(callMarker(parent, child))

	// Steps the callee ran count toward the total even when it failed.
	parent.stepsRun += child.stepsRun
	if child.Failure != nil {
		parent.completeFailed(child.Failure)
		return
	}
	parent.Cursor++
	parent.State = StateReady
}

// callMarker builds the parent-history entry recording a callee's outcome.
func callMarker(parent, child *Frame) Entry {
	e := Entry{
		Kind:       EntryCall,
		ScriptName: parent.Name(),
		StepIndex:  parent.Cursor,
		Command:    child.Name(),
		Result:     executor.Result{Success: child.Failure == nil},
	}
	if child.Failure != nil {
		e.Summary = fmt.Sprintf("Failed %s: %s", child.Name(), child.Failure.Detail)
		e.Result.ErrorDetail = child.Failure.Detail
	} else {
		e.Summary = fmt.Sprintf("Completed %s in %d steps", child.Name(), child.stepsRun)
	}
	return e
}

// suspend builds the suspension descriptor for the top frame, draining the
// activity accumulated since the agent last had control.
func (m *Manager) suspend(f *Frame) *Outcome {
	s := &Suspension{
		ScriptName: f.Name(),
		StepIndex:  f.Cursor,
		StackPath:  m.stackPath(),
		History:    m.drainAll(),
	}
	if f.State == StateSuspendedOnNlScript {
		s.Kind = SuspendNlScript
		s.Instruction = script.SubstituteArgs(f.Script.Source, f.Args)
	} else {
		step := f.currentStep()
		s.Kind = SuspendLlmStep
		s.Instruction = step.Prompt
		s.Expects = step.Expects
	}
	m.emit(EventSuspended, map[string]any{
		"script": f.Name(),
		"kind":   string(s.Kind),
	})
	return &Outcome{Suspension: s}
}

// drainAll drains every frame's history bottom-to-top. Each History only ever
// sees its own frame; the manager composes the windows so the agent gets all
// activity since it last had control, in chronological order.
func (m *Manager) drainAll() []Entry {
	var all []Entry
	for _, f := range m.frames {
		all = append(all, f.History.Drain()...)
	}
	return all
}

func (m *Manager) top() *Frame { return m.frames[len(m.frames)-1] }

func (m *Manager) push(f *Frame) { m.frames = append(m.frames, f) }

// stackPath renders the stack bottom-to-top, e.g. "deploy[2] > checks[0]".
func (m *Manager) stackPath() string {
	segs := make([]string, len(m.frames))
	for i, f := range m.frames {
		segs[i] = f.PathSegment()
	}
	return strings.Join(segs, " > ")
}

// requireTop fetches the top frame and verifies it is in the state the
// resumption operation needs. The stack is never mutated on violation.
func (m *Manager) requireTop(op string, want State) (*Frame, error) {
	if len(m.frames) == 0 {
		return nil, &ProtocolError{Op: op, ExpectedState: want, Detail: "no script is in progress"}
	}
	f := m.top()
	if f.State != want {
		return nil, &ProtocolError{Op: op, ExpectedState: want, ActualState: f.State}
	}
	return f, nil
}

// checkKeys validates that supplied keys are exactly the declared keys.
func checkKeys(op string, declared, supplied map[string]string) error {
	mismatch := len(declared) != len(supplied)
	if !mismatch {
		for k := range supplied {
			if _, ok := declared[k]; !ok {
				mismatch = true
				break
			}
		}
	}
	if mismatch {
		return &ProtocolError{
			Op:           op,
			ExpectedKeys: mapKeys(declared),
			ActualKeys:   mapKeys(supplied),
		}
	}
	return nil
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (m *Manager) emit(t EventType, data map[string]any) {
	if m.tracer != nil {
		_ = m.tracer.Emit(t, data)
	}
}
