package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrzor/rtos-trace/internal/protocol"
)

// Env is the view of an event an expression sees.
type Env struct {
	Tag            string `expr:"tag"`
	Tick           int    `expr:"tick"`
	Timestamp      int    `expr:"timestamp"`
	TaskID         int    `expr:"task_id"`
	AffectedObject int    `expr:"affected_object"`
	Delay          int    `expr:"delay"`
	TaskName       string `expr:"task_name"`
	IsQueue        bool   `expr:"is_queue"`
}

// EnvFor builds the expression environment of an event.
func EnvFor(ev protocol.Event) Env {
	return Env{
		Tag:            ev.Tag,
		Tick:           int(ev.Tick),
		Timestamp:      int(ev.Timestamp),
		TaskID:         int(ev.TaskID),
		AffectedObject: int(ev.AffectedObject),
		Delay:          int(ev.Delay),
		TaskName:       ev.TaskName,
		IsQueue:        ev.IsQueueEvent(),
	}
}

// Filter is a compiled boolean expression over events.
type Filter struct {
	program *vm.Program
	source  string
}

// Compile type-checks src. An empty or blank src matches every event.
func Compile(src string) (*Filter, error) {
	if strings.TrimSpace(src) == "" {
		return &Filter{}, nil
	}

	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", src, err)
	}

	return &Filter{program: program, source: src}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.source
}

// Match evaluates the filter against one event.
func (f *Filter) Match(ev protocol.Event) (bool, error) {
	if f.program == nil {
		return true, nil
	}

	out, err := expr.Run(f.program, EnvFor(ev))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q: %w", f.source, err)
	}

	keep, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", f.source, out)
	}
	return keep, nil
}

// Apply returns the events the filter keeps, in order.
func (f *Filter) Apply(events []protocol.Event) ([]protocol.Event, error) {
	if f.program == nil {
		return events, nil
	}

	kept := make([]protocol.Event, 0, len(events))
	for _, ev := range events {
		keep, err := f.Match(ev)
		if err != nil {
			return nil, err
		}
		if keep {
			kept = append(kept, ev)
		}
	}
	return kept, nil
}
