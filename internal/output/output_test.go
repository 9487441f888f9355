package output

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/rtos-trace/internal/attributes"
	"github.com/mrzor/rtos-trace/internal/config"
	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/schedule"
	"github.com/mrzor/rtos-trace/internal/timesync"
)

func sampleTrace(exitCode *int32) *Trace {
	events := []protocol.Event{
		{Tag: protocol.TagTaskSwitchedIn, Tick: 10, Timestamp: 100, TaskID: 1, TaskName: "printTask"},
		{Tag: protocol.TagQueueSend, Tick: 12, Timestamp: 120, TaskID: 1, AffectedObject: 40, TaskName: "printTask"},
		{Tag: protocol.TagTaskDelay, Tick: 15, Timestamp: 150, TaskID: 1, Delay: 5, TaskName: "printTask"},
		{Tag: protocol.TagTaskSwitchedOut, Tick: 20, Timestamp: 200, TaskID: 1, TaskName: "printTask"},
		{Tag: protocol.TagTaskSwitchedIn, Tick: 20, Timestamp: 201, TaskID: 2, TaskName: "IDLE"},
		{Tag: protocol.TagTaskSwitchedOut, Tick: 50, Timestamp: 500, TaskID: 2, TaskName: "IDLE"},
	}
	return &Trace{
		Schedule:  schedule.Reconstruct(events),
		SessionID: "cs0ti0ni7rr2uaou8kpg",
		Source:    "capture.log",
		ExitCode:  exitCode,
	}
}

func int32p(v int32) *int32 { return &v }

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Export(context.Background(), sampleTrace(int32p(0))))

	out := buf.String()
	assert.Contains(t, out, "session: cs0ti0ni7rr2uaou8kpg")
	assert.Contains(t, out, "exit:    0")
	assert.Contains(t, out, "ticks:   10..50")
	assert.Contains(t, out, "queues:  0:40")

	lines := strings.Split(out, "\n")
	var rows []string
	for _, l := range lines {
		if strings.HasPrefix(l, "1 ") || strings.HasPrefix(l, "2 ") {
			rows = append(rows, strings.Join(strings.Fields(l), " "))
		}
	}
	require.Len(t, rows, 2)
	assert.Equal(t, "1 printTask 1 10 25.0% delay=1 queue_send=1", rows[0])
	assert.Equal(t, "2 IDLE 1 30 75.0% -", rows[1])
}

func TestTextFormatter_ExitLine(t *testing.T) {
	unfinished := sampleTrace(nil)
	unfinished.Unterminated = true

	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Export(context.Background(), unfinished))
	assert.Contains(t, buf.String(), "exit:    none (session did not finish)")

	buf.Reset()
	require.NoError(t, NewTextFormatter(&buf).Export(context.Background(), sampleTrace(nil)))
	assert.NotContains(t, buf.String(), "exit:")
}

func TestTextFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	tr := &Trace{Schedule: schedule.Reconstruct(nil)}
	require.NoError(t, NewTextFormatter(&buf).Export(context.Background(), tr))
	assert.Contains(t, buf.String(), "ticks:   none")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(&buf, true).Export(context.Background(), sampleTrace(nil)))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Nil(t, doc["exit_code"])
	assert.NotContains(t, doc, "unterminated")
	assert.Equal(t, float64(10), doc["first_tick"])
	assert.Equal(t, float64(50), doc["last_tick"])
	assert.Equal(t, []any{float64(40)}, doc["queue_order"])

	tasks := doc["tasks"].([]any)
	require.Len(t, tasks, 2)
	first := tasks[0].(map[string]any)
	assert.Equal(t, "printTask", first["task_name"])
	assert.Equal(t, float64(10), first["busy_ticks"])
	assert.Equal(t, 0.25, first["utilization"])

	markers := first["markers"].([]any)
	require.Len(t, markers, 2)
	assert.Equal(t, "queue_send", markers[0].(map[string]any)["kind"])
	assert.Equal(t, float64(0), markers[0].(map[string]any)["queue_index"])
}

func TestJSONFormatter_EmptyTrace(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(&buf, false).Export(context.Background(), &Trace{Schedule: schedule.Reconstruct(nil)}))
	assert.Equal(t, `{"exit_code":null,"first_tick":null,"last_tick":null,"task_order":[],"queue_order":[],"tasks":[]}`+"\n", buf.String())
}

func newRecordingTracer(t *testing.T) (trace.Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("test"), recorder
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestOTELFormatter_SpanTree(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := timesync.NewConverter(base, 1000)
	require.NoError(t, err)

	f := NewOTELFormatter(tracer, clock, WithHostEnv(map[string]string{}))
	require.NoError(t, f.Export(context.Background(), sampleTrace(int32p(0))))

	spans := recorder.Ended()
	require.Len(t, spans, 5, "root + 2 tasks + 2 intervals")

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}

	root := byName["rtos.trace"]
	require.NotNil(t, root)
	assert.Equal(t, base.Add(10*time.Millisecond), root.StartTime())
	assert.Equal(t, base.Add(50*time.Millisecond), root.EndTime())
	assert.Equal(t, codes.Ok, root.Status().Code)
	rootAttrs := attrMap(root.Attributes())
	assert.Equal(t, "cs0ti0ni7rr2uaou8kpg", rootAttrs[AttrSessionID].AsString())
	assert.Equal(t, int64(2), rootAttrs[AttrTaskCount].AsInt64())

	task := byName["task printTask"]
	require.NotNil(t, task)
	assert.Equal(t, root.SpanContext().SpanID(), task.Parent().SpanID())
	taskAttrs := attrMap(task.Attributes())
	assert.Equal(t, int64(1), taskAttrs[AttrTaskID].AsInt64())
	assert.Equal(t, int64(10), taskAttrs[AttrBusyTicks].AsInt64())

	events := task.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "queue_send", events[0].Name)
	assert.Equal(t, base.Add(12*time.Millisecond), events[0].Time)
	assert.Equal(t, int64(0), attrMap(events[0].Attributes)[AttrQueueIndex].AsInt64())
	assert.Equal(t, "delay", events[1].Name)
	assert.Equal(t, int64(5), attrMap(events[1].Attributes)[AttrMarkerValue].AsInt64())

	var intervals []sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == "running" {
			intervals = append(intervals, s)
		}
	}
	require.Len(t, intervals, 2)
	for _, iv := range intervals {
		parentFound := iv.Parent().SpanID() == task.SpanContext().SpanID() ||
			iv.Parent().SpanID() == byName["task IDLE"].SpanContext().SpanID()
		assert.True(t, parentFound, "interval spans hang under their task span")
	}
}

func TestOTELFormatter_Status(t *testing.T) {
	tests := []struct {
		name         string
		exitCode     *int32
		unterminated bool
		want         codes.Code
	}{
		{"finished ok", int32p(0), false, codes.Ok},
		{"finished with error", int32p(3), false, codes.Error},
		{"unterminated", nil, true, codes.Error},
		{"exit code not recorded", nil, false, codes.Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, recorder := newRecordingTracer(t)
			clock, _ := timesync.NewConverter(time.Unix(0, 0), 100)

			f := NewOTELFormatter(tracer, clock, WithHostEnv(nil))
			tr := sampleTrace(tt.exitCode)
			tr.Unterminated = tt.unterminated
			require.NoError(t, f.Export(context.Background(), tr))

			for _, s := range recorder.Ended() {
				if s.Name() == "rtos.trace" {
					assert.Equal(t, tt.want, s.Status().Code)
					return
				}
			}
			t.Fatal("root span not recorded")
		})
	}
}

func TestOTELFormatter_CustomAttributesAndParent(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)
	clock, _ := timesync.NewConverter(time.Unix(0, 0), 1000)

	evaluator, err := attributes.NewEvaluator([]config.CustomAttribute{
		{Name: "board", Expression: `env["BOARD"]`},
		{Name: "idle", Expression: `task_name == "IDLE"`},
	}, nil)
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	f := NewOTELFormatter(tracer, clock,
		WithAttributeEvaluator(evaluator),
		WithParentSpan(parent),
		WithRootAttributes(attribute.String("_parent_id_expr_result", "x")),
		WithHostEnv(map[string]string{"BOARD": "esp32"}),
	)
	require.NoError(t, f.Export(context.Background(), sampleTrace(int32p(0))))

	for _, s := range recorder.Ended() {
		assert.Equal(t, traceID, s.SpanContext().TraceID())
		switch s.Name() {
		case "rtos.trace":
			assert.Equal(t, spanID, s.Parent().SpanID())
			assert.Equal(t, "x", attrMap(s.Attributes())["_parent_id_expr_result"].AsString())
		case "task IDLE":
			attrs := attrMap(s.Attributes())
			assert.Equal(t, "esp32", attrs["board"].AsString())
			assert.Equal(t, "true", attrs["idle"].AsString())
		}
	}
}

func TestOTELFormatter_UnnamedTask(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)
	clock, _ := timesync.NewConverter(time.Unix(0, 0), 1000)

	tr := &Trace{Schedule: schedule.Reconstruct([]protocol.Event{
		{Tag: protocol.TagTaskDelay, Tick: 3, TaskID: 9, Delay: 2},
	})}
	require.NoError(t, NewOTELFormatter(tracer, clock, WithHostEnv(nil)).Export(context.Background(), tr))

	names := []string{}
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"rtos.trace", "task 9"}, names)
}

func TestTimelineExtent(t *testing.T) {
	tl := &schedule.Timeline{
		Intervals: []schedule.Interval{{Start: 10, End: 20}, {Start: 30, End: 35}},
		Markers:   []schedule.Marker{{Tick: 5}, {Tick: 33}},
	}
	start, end := timelineExtent(tl)
	assert.Equal(t, uint32(5), start)
	assert.Equal(t, uint32(35), end)

	start, end = timelineExtent(&schedule.Timeline{})
	assert.Zero(t, start)
	assert.Zero(t, end)
}
