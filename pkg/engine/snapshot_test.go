package engine

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ormasoftchile/maestro/pkg/executor"
	"github.com/ormasoftchile/maestro/pkg/script"
)

func nestedFixture() (script.MapResolver, *stubExec) {
	resolver := script.MapResolver{
		"deploy": compiled("deploy",
			auto("fetch", "git fetch"),
			call("checks", "preflight", ""),
			auto("push", "git push"),
		),
		"preflight": compiled("preflight",
			auto("lint", "make lint"),
			llm("approve", "Approve the deploy?", map[string]string{"approved": ""}),
		),
	}
	exec := &stubExec{results: map[string]*executor.StepExecution{
		"fetch": ok(map[string]string{"ref": "abc123"}),
	}}
	return resolver, exec
}

func TestSnapshotRoundTripMidSuspension(t *testing.T) {
	ctx := context.Background()
	resolver, exec := nestedFixture()
	m := NewManager(resolver, exec)

	out, err := m.Start(ctx, "deploy", "", "/srv/app")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if out.Suspension == nil || out.Suspension.Kind != SuspendLlmStep {
		t.Fatalf("want llm suspension, got %+v", out)
	}

	// Serialize, persist, and rebuild in a fresh manager, as a later process
	// invocation would.
	path := filepath.Join(t.TempDir(), "session.json")
	if err := SaveSnapshot(m.Snapshot(), path); err != nil {
		t.Fatalf("SaveSnapshot() error: %v", err)
	}
	snap, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot() error: %v", err)
	}
	if snap.WorkDir != "/srv/app" {
		t.Errorf("snapshot WorkDir = %q, want /srv/app", snap.WorkDir)
	}

	freshResolver, freshExec := nestedFixture()
	restored, err := Restore(snap, freshResolver, freshExec)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if !reflect.DeepEqual(restored.Status(), m.Status()) {
		t.Errorf("restored status = %+v, want %+v", restored.Status(), m.Status())
	}

	// Resuming the restored stack produces the same transitions as resuming
	// the original in-memory stack.
	origOut, err := m.ContinueCompiled(ctx, map[string]string{"approved": "yes"})
	if err != nil {
		t.Fatalf("original ContinueCompiled() error: %v", err)
	}
	restOut, err := restored.ContinueCompiled(ctx, map[string]string{"approved": "yes"})
	if err != nil {
		t.Fatalf("restored ContinueCompiled() error: %v", err)
	}
	if !origOut.Done || !restOut.Done {
		t.Fatalf("outcomes not both done: orig %+v, restored %+v", origOut, restOut)
	}
	if !reflect.DeepEqual(origOut.Outputs, restOut.Outputs) {
		t.Errorf("outputs diverge: orig %v, restored %v", origOut.Outputs, restOut.Outputs)
	}
	if len(origOut.History) != len(restOut.History) {
		t.Errorf("history length diverges: orig %d, restored %d", len(origOut.History), len(restOut.History))
	}
}

func TestSnapshotSerializedLayout(t *testing.T) {
	resolver := script.MapResolver{
		"s": compiled("s", auto("a1", "echo 1"), llm("ask", "?", nil)),
	}
	m := NewManager(resolver, &stubExec{})
	if _, err := m.Start(context.Background(), "s", "", ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// History was drained by the suspension; the frame serializes empty.
	snap := m.Snapshot()
	if len(snap.Frames) != 1 {
		t.Fatalf("len(Frames) = %d, want 1", len(snap.Frames))
	}
	fs := snap.Frames[0]
	if fs.Script != "s" || fs.Cursor != 1 || fs.State != StateSuspendedOnLlmStep {
		t.Errorf("frame = %+v, want s at cursor 1 suspended on llm", fs)
	}
	if len(fs.History) != 0 {
		t.Errorf("serialized history = %+v, want empty after drain", fs.History)
	}
	if fs.StepsRun != 1 {
		t.Errorf("StepsRun = %d, want 1", fs.StepsRun)
	}
}

func TestRestoreRejectsOutOfRangeCursor(t *testing.T) {
	resolver := script.MapResolver{
		"s": compiled("s", auto("a1", "echo 1")),
	}
	snap := &StackSnapshot{Frames: []FrameSnapshot{
		{Script: "s", Cursor: 7, State: StateReady},
	}}
	if _, err := Restore(snap, resolver, &stubExec{}); err == nil {
		t.Error("Restore() accepted out-of-range cursor, want error")
	}
}

func TestRestoreRejectsStaleLlmSuspension(t *testing.T) {
	// The script lost its trailing llm step between save and restore; the
	// persisted suspension no longer has a step to resume into.
	resolver := script.MapResolver{
		"s": compiled("s", auto("a1", "echo 1")),
	}
	snap := &StackSnapshot{Frames: []FrameSnapshot{
		{Script: "s", Cursor: 1, State: StateSuspendedOnLlmStep},
	}}
	if _, err := Restore(snap, resolver, &stubExec{}); err == nil {
		t.Error("Restore() accepted an llm suspension past the last step, want error")
	}

	// Same cursor, but the step there is now an auto step.
	snap.Frames[0].Cursor = 0
	if _, err := Restore(snap, resolver, &stubExec{}); err == nil {
		t.Error("Restore() accepted an llm suspension on an auto step, want error")
	}
}

func TestRestoreRejectsNlSuspensionOnCompiledScript(t *testing.T) {
	resolver := script.MapResolver{
		"s": compiled("s", auto("a1", "echo 1")),
	}
	snap := &StackSnapshot{Frames: []FrameSnapshot{
		{Script: "s", Cursor: 0, State: StateSuspendedOnNlScript},
	}}
	if _, err := Restore(snap, resolver, &stubExec{}); err == nil {
		t.Error("Restore() accepted an nl suspension on a compiled script, want error")
	}
}

func TestRestoreMissingScript(t *testing.T) {
	snap := &StackSnapshot{Frames: []FrameSnapshot{
		{Script: "gone", Cursor: 0, State: StateReady},
	}}
	if _, err := Restore(snap, script.MapResolver{}, &stubExec{}); err == nil {
		t.Error("Restore() resolved a missing script, want error")
	}
}
