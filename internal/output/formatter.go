package output

import (
	"context"

	"github.com/mrzor/rtos-trace/internal/schedule"
)

// Trace is one reconstructed capture, ready for export.
type Trace struct {
	Schedule  *schedule.Schedule
	SessionID string
	Source    string
	// ExitCode is nil when no exit code is known.
	ExitCode *int32
	// Unterminated is set when the session is known to have ended without a
	// readable finish flag. A CSV capture carries no exit code at all and
	// leaves both fields unset.
	Unterminated bool
}

// Exporter renders or ships a trace.
type Exporter interface {
	Export(ctx context.Context, t *Trace) error
}

// taskLabel names a task for display.
func taskLabel(tl *schedule.Timeline) string {
	if tl.Name != "" {
		return tl.Name
	}
	return "<unnamed>"
}
