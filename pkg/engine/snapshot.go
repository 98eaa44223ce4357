package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ormasoftchile/maestro/pkg/executor"
	"github.com/ormasoftchile/maestro/pkg/script"
)

// FrameSnapshot is the serialized form of one stack frame. Scripts are
// stored by identifier and re-resolved on restore, so snapshots stay small
// and survive script-file edits that don't move steps around; an edit that
// invalidates a suspension point is rejected at restore time.
type FrameSnapshot struct {
	Script   string            `json:"script"`
	Args     string            `json:"args,omitempty"`
	Cursor   int               `json:"cursor"`
	State    State             `json:"state"`
	Outputs  map[string]string `json:"outputs,omitempty"`
	History  []Entry           `json:"history,omitempty"`
	StepsRun int               `json:"steps_run"`
}

// StackSnapshot is the persisted execution stack, bottom to top. It is the
// only artifact needed to resume a suspended run in an unrelated process.
type StackSnapshot struct {
	WorkDir string          `json:"work_dir,omitempty"`
	Frames  []FrameSnapshot `json:"frames"`
}

// Snapshot captures the manager's current stack.
func (m *Manager) Snapshot() *StackSnapshot {
	snap := &StackSnapshot{WorkDir: m.workDir}
	for _, f := range m.frames {
		snap.Frames = append(snap.Frames, FrameSnapshot{
			Script:   f.Name(),
			Args:     f.Args,
			Cursor:   f.Cursor,
			State:    f.State,
			Outputs:  f.Outputs,
			History:  f.History.Entries(),
			StepsRun: f.stepsRun,
		})
	}
	return snap
}

// Restore reconstructs a manager from a snapshot, re-resolving each frame's
// script and validating that cursors and suspension states still match the
// resolved step sequences.
func Restore(snap *StackSnapshot, resolver script.Resolver, exec executor.AutoExecutor, opts ...Option) (*Manager, error) {
	m := NewManager(resolver, exec, opts...)
	m.workDir = snap.WorkDir
	for i, fs := range snap.Frames {
		sc, err := resolver.Resolve(fs.Script)
		if err != nil {
			return nil, fmt.Errorf("restore frame %d: %w", i, err)
		}
		if sc.Kind == script.KindCompiled && (fs.Cursor < 0 || fs.Cursor > len(sc.Steps)) {
			return nil, fmt.Errorf("restore frame %d: cursor %d out of range for %q (%d steps)",
				i, fs.Cursor, fs.Script, len(sc.Steps))
		}
		// A suspended frame's resumption point must still exist: the script
		// may have been edited between save and restore.
		switch fs.State {
		case StateSuspendedOnLlmStep:
			if sc.Kind != script.KindCompiled || fs.Cursor >= len(sc.Steps) || sc.Steps[fs.Cursor].Type != script.StepLlm {
				return nil, fmt.Errorf("restore frame %d: %q suspended on an llm step, but the step at cursor %d is missing or no longer llm",
					i, fs.Script, fs.Cursor)
			}
		case StateSuspendedOnNlScript:
			if sc.Kind != script.KindNatural {
				return nil, fmt.Errorf("restore frame %d: %q suspended on a natural-language script, but now resolves to a compiled one",
					i, fs.Script)
			}
		case StateReady, StateCompleted:
		default:
			return nil, fmt.Errorf("restore frame %d: unknown state %q", i, fs.State)
		}
		f := &Frame{
			Script:   sc,
			Args:     fs.Args,
			Cursor:   fs.Cursor,
			State:    fs.State,
			Outputs:  fs.Outputs,
			stepsRun: fs.StepsRun,
		}
		if f.Outputs == nil {
			f.Outputs = make(map[string]string)
		}
		f.History.Extend(fs.History)
		m.push(f)
	}
	return m, nil
}

// SaveSnapshot persists a snapshot to a JSON file.
func SaveSnapshot(snap *StackSnapshot, path string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*StackSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap StackSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
