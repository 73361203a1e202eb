package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one audit record. Metadata carries operation-specific details
// such as edit scope and affected row counts.
type Entry struct {
	WorkspaceID string         `json:"workspace_id"`
	ActorID     string         `json:"actor_id"`
	Action      string         `json:"action"`
	Subject     string         `json:"subject"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	At          time.Time      `json:"at"`
}

// Sink receives audit entries. Record is fire-and-forget: implementations
// must swallow delivery failures so they never roll back the primary
// transaction the entry describes.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// LogSink writes audit entries to the structured log. It is the fallback
// when no message broker is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a LogSink; a nil logger falls back to slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record logs the entry.
func (s *LogSink) Record(ctx context.Context, entry Entry) {
	if s == nil {
		return
	}
	s.logger.InfoContext(ctx, "audit",
		"workspace_id", entry.WorkspaceID,
		"actor_id", entry.ActorID,
		"action", entry.Action,
		"subject", entry.Subject,
		"metadata", entry.Metadata,
	)
}

// MemorySink accumulates entries for inspection in tests.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink constructs an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends the entry.
func (s *MemorySink) Record(_ context.Context, entry Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
