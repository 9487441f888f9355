package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mrzor/rtos-trace/internal/schedule"
)

// Document is the JSON form of a trace.
type Document struct {
	SessionID    string         `json:"session_id,omitempty"`
	Source       string         `json:"source,omitempty"`
	ExitCode     *int32         `json:"exit_code"`
	Unterminated bool           `json:"unterminated,omitempty"`
	FirstTick    *uint32        `json:"first_tick"`
	LastTick     *uint32        `json:"last_tick"`
	TaskOrder    []uint32       `json:"task_order"`
	QueueOrder   []uint32       `json:"queue_order"`
	Tasks        []TaskDocument `json:"tasks"`
}

// TaskDocument is one timeline with its summary figures.
type TaskDocument struct {
	*schedule.Timeline
	BusyTicks   uint64  `json:"busy_ticks"`
	Utilization float64 `json:"utilization"`
}

// NewDocument builds the JSON document of t. Tasks follow task order.
func NewDocument(t *Trace) Document {
	s := t.Schedule
	doc := Document{
		SessionID:    t.SessionID,
		Source:       t.Source,
		ExitCode:     t.ExitCode,
		Unterminated: t.Unterminated,
		TaskOrder:    s.TaskOrder,
		QueueOrder:   s.QueueOrder,
		Tasks:        make([]TaskDocument, 0, len(s.TaskOrder)),
	}
	if first, last, ok := s.Span(); ok {
		doc.FirstTick, doc.LastTick = &first, &last
	}
	for _, tl := range s.Ordered() {
		doc.Tasks = append(doc.Tasks, TaskDocument{
			Timeline:    tl,
			BusyTicks:   tl.BusyTicks(),
			Utilization: s.Utilization(tl.TaskID),
		})
	}
	return doc
}

// JSONFormatter writes the trace as one JSON document.
type JSONFormatter struct {
	w      io.Writer
	indent bool
}

// NewJSONFormatter returns a formatter writing to w, indented when indent is set.
func NewJSONFormatter(w io.Writer, indent bool) *JSONFormatter {
	return &JSONFormatter{w: w, indent: indent}
}

// Export implements Exporter.
func (f *JSONFormatter) Export(_ context.Context, t *Trace) error {
	enc := json.NewEncoder(f.w)
	if f.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(NewDocument(t)); err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}
	return nil
}
