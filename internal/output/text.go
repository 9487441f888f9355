package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mrzor/rtos-trace/internal/schedule"
)

// TextFormatter writes a per-task summary table.
type TextFormatter struct {
	w io.Writer
}

// NewTextFormatter returns a formatter writing to w.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{w: w}
}

// Export implements Exporter.
func (f *TextFormatter) Export(_ context.Context, t *Trace) error {
	s := t.Schedule

	if t.SessionID != "" {
		fmt.Fprintf(f.w, "session: %s\n", t.SessionID)
	}
	if t.Source != "" {
		fmt.Fprintf(f.w, "source:  %s\n", t.Source)
	}
	switch {
	case t.ExitCode != nil:
		fmt.Fprintf(f.w, "exit:    %d\n", *t.ExitCode)
	case t.Unterminated:
		fmt.Fprintln(f.w, "exit:    none (session did not finish)")
	}
	if first, last, ok := s.Span(); ok {
		fmt.Fprintf(f.w, "ticks:   %d..%d\n", first, last)
	} else {
		fmt.Fprintln(f.w, "ticks:   none")
	}

	tw := tabwriter.NewWriter(f.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tNAME\tINTERVALS\tBUSY\tUTIL\tMARKERS")
	for _, tl := range s.Ordered() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.1f%%\t%s\n",
			tl.TaskID, taskLabel(tl), len(tl.Intervals), tl.BusyTicks(),
			100*s.Utilization(tl.TaskID), markerSummary(tl.Markers))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write schedule table: %w", err)
	}

	queues := make([]string, len(s.QueueOrder))
	for i, q := range s.QueueOrder {
		queues[i] = fmt.Sprintf("%d:%d", i, q)
	}
	if _, err := fmt.Fprintf(f.w, "queues:  %s\n", strings.Join(queues, " ")); err != nil {
		return fmt.Errorf("failed to write queue order: %w", err)
	}
	return nil
}

// markerSummary counts markers per kind, in kind order: "delay=2 queue_send=1".
func markerSummary(markers []schedule.Marker) string {
	if len(markers) == 0 {
		return "-"
	}

	counts := map[schedule.MarkerKind]int{}
	for _, m := range markers {
		counts[m.Kind]++
	}

	var parts []string
	for k := schedule.MarkerDelay; k <= schedule.MarkerQueueSend; k++ {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	return strings.Join(parts, " ")
}
