package engine

import (
	"github.com/ormasoftchile/maestro/pkg/executor"
)

// EntryKind distinguishes history entry flavors.
type EntryKind string

const (
	// EntryAuto records one completed auto-step invocation.
	EntryAuto EntryKind = "auto"
	// EntrySkip records an auto step whose guard evaluated false.
	EntrySkip EntryKind = "skip"
	// EntryCall records a nested script finishing (successfully or not).
	EntryCall EntryKind = "call"
)

// Entry is one execution-history record: what ran, its streamed chunks, and
// its terminal result.
type Entry struct {
	Kind       EntryKind        `json:"kind"`
	ScriptName string           `json:"script"`
	StepIndex  int              `json:"step_index"`
	StepID     string           `json:"step_id,omitempty"`
	Command    string           `json:"command,omitempty"`
	Chunks     []executor.Chunk `json:"chunks,omitempty"`
	Result     executor.Result  `json:"result"`
	Summary    string           `json:"summary,omitempty"` // call entries only
}

// History is the append-only per-frame log of activity since the last drain.
// It preserves insertion order and is reset exactly once per suspension.
type History struct {
	entries []Entry
}

// Record appends one entry.
func (h *History) Record(e Entry) {
	h.entries = append(h.entries, e)
}

// Extend appends a sequence of entries, preserving their order.
func (h *History) Extend(entries []Entry) {
	h.entries = append(h.entries, entries...)
}

// Drain returns every entry accumulated since the last drain and atomically
// resets the history to empty.
func (h *History) Drain() []Entry {
	out := h.entries
	h.entries = nil
	return out
}

// Entries returns the un-drained entries without resetting. Used for
// serialization and status inspection only.
func (h *History) Entries() []Entry {
	return h.entries
}

// Len reports the number of un-drained entries.
func (h *History) Len() int {
	return len(h.entries)
}
