package output

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mrzor/rtos-trace/internal/attributes"
	"github.com/mrzor/rtos-trace/internal/schedule"
	"github.com/mrzor/rtos-trace/internal/timesync"
)

// Span attribute keys.
const (
	AttrSessionID   = attribute.Key("rtos.session.id")
	AttrSource      = attribute.Key("rtos.source")
	AttrExitCode    = attribute.Key("rtos.exit_code")
	AttrTaskID      = attribute.Key("rtos.task.id")
	AttrTaskName    = attribute.Key("rtos.task.name")
	AttrTaskIndex   = attribute.Key("rtos.task.index")
	AttrTaskTarget  = attribute.Key("rtos.task.target_index")
	AttrBusyTicks   = attribute.Key("rtos.task.busy_ticks")
	AttrUtilization = attribute.Key("rtos.task.utilization")
	AttrTickStart   = attribute.Key("rtos.tick.start")
	AttrTickEnd     = attribute.Key("rtos.tick.end")
	AttrTick        = attribute.Key("rtos.tick")
	AttrEventType   = attribute.Key("rtos.eventtype")
	AttrMarkerValue = attribute.Key("rtos.marker.value")
	AttrQueueIndex  = attribute.Key("rtos.queue.index")
	AttrTaskCount   = attribute.Key("rtos.task.count")
	AttrQueueCount  = attribute.Key("rtos.queue.count")
)

// OTELOption configures an OTELFormatter.
type OTELOption func(*OTELFormatter)

// WithAttributeEvaluator adds custom attributes to every task span.
func WithAttributeEvaluator(e *attributes.Evaluator) OTELOption {
	return func(f *OTELFormatter) { f.evaluator = e }
}

// WithParentSpan hangs the root span under a remote parent.
func WithParentSpan(sc trace.SpanContext) OTELOption {
	return func(f *OTELFormatter) { f.parent = sc }
}

// WithRootAttributes adds attributes to the root span, typically the
// warnings of the trace-id and parent-id evaluators.
func WithRootAttributes(attrs ...attribute.KeyValue) OTELOption {
	return func(f *OTELFormatter) { f.rootAttrs = append(f.rootAttrs, attrs...) }
}

// WithHostEnv sets the environment custom attribute expressions see as env.
// Defaults to the process environment.
func WithHostEnv(env map[string]string) OTELOption {
	return func(f *OTELFormatter) { f.hostEnv = env }
}

// WithOTELLogger sets the logger.
func WithOTELLogger(l *zap.Logger) OTELOption {
	return func(f *OTELFormatter) { f.logger = l }
}

// OTELFormatter exports a trace as spans: one root span, one span per task,
// and one span per busy interval. Markers become span events on their task
// span. Ticks are placed on the wall clock by the converter.
type OTELFormatter struct {
	tracer    trace.Tracer
	clock     *timesync.Converter
	evaluator *attributes.Evaluator
	parent    trace.SpanContext
	rootAttrs []attribute.KeyValue
	hostEnv   map[string]string
	logger    *zap.Logger
}

// NewOTELFormatter creates a new OTELFormatter.
func NewOTELFormatter(tracer trace.Tracer, clock *timesync.Converter, opts ...OTELOption) *OTELFormatter {
	f := &OTELFormatter{
		tracer: tracer,
		clock:  clock,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.hostEnv == nil {
		f.hostEnv = HostEnv()
	}
	return f
}

// HostEnv returns the process environment as a map.
func HostEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Export implements Exporter.
func (f *OTELFormatter) Export(ctx context.Context, t *Trace) error {
	s := t.Schedule
	first, last, ok := s.Span()
	if !ok {
		f.logger.Warn("Exporting empty trace")
	}

	if f.parent.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, f.parent)
	}

	rootAttrs := []attribute.KeyValue{
		AttrTickStart.Int64(int64(first)),
		AttrTickEnd.Int64(int64(last)),
		AttrTaskCount.Int(len(s.TaskOrder)),
		AttrQueueCount.Int(len(s.QueueOrder)),
	}
	if t.SessionID != "" {
		rootAttrs = append(rootAttrs, AttrSessionID.String(t.SessionID))
	}
	if t.Source != "" {
		rootAttrs = append(rootAttrs, AttrSource.String(t.Source))
	}
	if t.ExitCode != nil {
		rootAttrs = append(rootAttrs, AttrExitCode.Int64(int64(*t.ExitCode)))
	}
	rootAttrs = append(rootAttrs, f.rootAttrs...)

	rootCtx, root := f.tracer.Start(ctx, "rtos.trace",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(f.clock.TickToWallClock(first)),
		trace.WithAttributes(rootAttrs...),
	)

	for i, tl := range s.Ordered() {
		f.exportTask(rootCtx, s, i, tl)
	}

	// An unknown exit code leaves the status unset.
	switch {
	case t.ExitCode == nil:
		if t.Unterminated {
			root.SetStatus(codes.Error, "session did not finish")
		}
	case *t.ExitCode != 0:
		root.SetStatus(codes.Error, fmt.Sprintf("device exited with code %d", *t.ExitCode))
	default:
		root.SetStatus(codes.Ok, "Device finished")
	}
	root.End(trace.WithTimestamp(f.clock.TickToWallClock(last)))

	return nil
}

func (f *OTELFormatter) exportTask(ctx context.Context, s *schedule.Schedule, index int, tl *schedule.Timeline) {
	start, end := timelineExtent(tl)

	attrs := []attribute.KeyValue{
		AttrTaskID.Int64(int64(tl.TaskID)),
		AttrTaskName.String(tl.Name),
		AttrTaskIndex.Int(index),
		AttrBusyTicks.Int64(int64(tl.BusyTicks())),
		AttrUtilization.Float64(s.Utilization(tl.TaskID)),
		AttrTickStart.Int64(int64(start)),
		AttrTickEnd.Int64(int64(end)),
	}
	attrs = append(attrs, f.customAttributes(s, tl)...)

	taskCtx, span := f.tracer.Start(ctx, taskSpanName(tl),
		trace.WithTimestamp(f.clock.TickToWallClock(start)),
		trace.WithAttributes(attrs...),
	)

	for _, iv := range tl.Intervals {
		_, ivSpan := f.tracer.Start(taskCtx, "running",
			trace.WithTimestamp(f.clock.TickToWallClock(iv.Start)),
			trace.WithAttributes(
				AttrTaskID.Int64(int64(iv.TaskID)),
				AttrTickStart.Int64(int64(iv.Start)),
				AttrTickEnd.Int64(int64(iv.End)),
			),
		)
		ivSpan.End(trace.WithTimestamp(f.clock.TickToWallClock(iv.End)))
	}

	for _, m := range tl.Markers {
		span.AddEvent(m.Kind.String(),
			trace.WithTimestamp(f.clock.TickToWallClock(m.Tick)),
			trace.WithAttributes(markerAttributes(m)...),
		)
	}

	span.End(trace.WithTimestamp(f.clock.TickToWallClock(end)))
}

func (f *OTELFormatter) customAttributes(s *schedule.Schedule, tl *schedule.Timeline) []attribute.KeyValue {
	if f.evaluator == nil {
		return nil
	}

	attrs, err := f.evaluator.Evaluate(&attributes.TaskEnv{
		TaskID:      tl.TaskID,
		TaskName:    tl.Name,
		BusyTicks:   tl.BusyTicks(),
		Utilization: s.Utilization(tl.TaskID),
		Intervals:   len(tl.Intervals),
		Markers:     len(tl.Markers),
		Env:         f.hostEnv,
	})
	if err != nil {
		f.logger.Warn("Failed to evaluate custom attributes", zap.Uint32("task_id", tl.TaskID), zap.Error(err))
		return nil
	}
	return attrs
}

func markerAttributes(m schedule.Marker) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEventType.String(m.Tag),
		AttrTick.Int64(int64(m.Tick)),
		AttrMarkerValue.Int64(int64(m.Value)),
	}
	if m.QueueIndex >= 0 {
		attrs = append(attrs, AttrQueueIndex.Int(m.QueueIndex))
	}
	if m.TargetIndex >= 0 {
		attrs = append(attrs, AttrTaskTarget.Int(m.TargetIndex))
	}
	return attrs
}

func taskSpanName(tl *schedule.Timeline) string {
	if tl.Name != "" {
		return "task " + tl.Name
	}
	return fmt.Sprintf("task %d", tl.TaskID)
}

// timelineExtent returns the first and last tick a timeline touches.
func timelineExtent(tl *schedule.Timeline) (start, end uint32) {
	seen := false
	see := func(tick uint32) {
		if !seen || tick < start {
			start = tick
		}
		if !seen || tick > end {
			end = tick
		}
		seen = true
	}
	for _, iv := range tl.Intervals {
		see(iv.Start)
		see(iv.End)
	}
	for _, m := range tl.Markers {
		see(m.Tick)
	}
	return start, end
}

// Ensure interface compliance.
var (
	_ Exporter = (*OTELFormatter)(nil)
	_ Exporter = (*TextFormatter)(nil)
	_ Exporter = (*JSONFormatter)(nil)
)
