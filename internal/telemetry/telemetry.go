// Package telemetry provides a JSONL journal of site context lifecycle
// events. Every creation, retry, rebuild, destroy and detected content change
// is recorded as one JSON object per line, so a host's context churn can be
// audited and replayed after the fact.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of lifecycle event.
const (
	KindContextCreated   = "context_created"
	KindContextReady     = "context_ready"
	KindContextDestroyed = "context_destroyed"
	KindContextRebuilt   = "context_rebuilt"
	KindCreateFailed     = "create_failed"
	KindCreateRetry      = "create_retry"
	KindCreateDenied     = "create_denied"
	KindContextInvalid   = "context_invalid"
	KindChangeDetected   = "change_detected"
	KindRebuildTriggered = "rebuild_triggered"
	KindSyncDone         = "sync_done"
)

// Event represents a single journal record. Each event carries a timestamp,
// a kind tag, the site it concerns and, when one exists, the id of the
// context instance, along with arbitrary structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Site      string    `json:"site,omitempty"`
	ContextID string    `json:"context,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes events to a JSONL file. It is safe for concurrent use by
// multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
	now  func() time.Time
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
		now:  time.Now,
	}, nil
}

// Emit writes a single event to the JSONL file, stamping it with the current
// time when Timestamp is zero. Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now()
	}
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
