package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates the trace event types the engine emits.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventStepCompleted EventType = "step_completed"
	EventFramePushed   EventType = "frame_pushed"
	EventFramePopped   EventType = "frame_popped"
	EventSuspended     EventType = "suspended"
	EventResumed       EventType = "resumed"
	EventRunCompleted  EventType = "run_completed"
)

// TraceEvent is a single event written to the JSONL stream.
type TraceEvent struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Session   string         `json:"session"`
	Data      map[string]any `json:"data,omitempty"`
}

// Tracer writes engine events to an append-only JSONL stream.
type Tracer struct {
	mu      sync.Mutex
	session string
	enc     *json.Encoder
}

// NewTracer creates a tracer that writes to the given io.Writer.
func NewTracer(w io.Writer, session string) *Tracer {
	return &Tracer{session: session, enc: json.NewEncoder(w)}
}

// NewFileTracer creates a tracer that appends to a JSONL file.
func NewFileTracer(path, session string) (*Tracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewTracer(f, session), nil
}

// Emit writes a single event.
func (t *Tracer) Emit(eventType EventType, data map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(TraceEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Session:   t.session,
		Data:      data,
	})
}
