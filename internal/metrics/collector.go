package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector counts what a trace session sees, on a private registry.
// It satisfies session.Recorder.
type Collector struct {
	registry *prometheus.Registry

	linesTotal       prometheus.Counter
	eventsTotal      *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	headerRows       prometheus.Counter
	passthroughLines prometheus.Counter
	taskNames        prometheus.Counter

	mu   sync.Mutex
	snap Snapshot
}

// Snapshot holds counter totals for end-of-run summaries.
type Snapshot struct {
	Lines        uint64
	Events       uint64
	DecodeErrors uint64
	HeaderRows   uint64
	Passthrough  uint64
	TaskNames    uint64
	EventsByTag  map[string]uint64
	ErrorsByKind map[string]uint64
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,

		linesTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "rtos_trace_lines_total",
				Help: "Console lines read from the device",
			},
		),

		eventsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtos_trace_events_total",
				Help: "Trace events decoded, by event tag",
			},
			[]string{"tag"},
		),

		decodeErrors: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtos_trace_decode_errors_total",
				Help: "Trace lines that failed to decode, by reason",
			},
			[]string{"reason"},
		),

		headerRows: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "rtos_trace_header_rows_total",
				Help: "Column header rows skipped",
			},
		),

		passthroughLines: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "rtos_trace_passthrough_lines_total",
				Help: "Tagged device lines that are not trace data",
			},
		),

		taskNames: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "rtos_trace_task_names_total",
				Help: "Task name rows registered",
			},
		),

		snap: Snapshot{
			EventsByTag:  make(map[string]uint64),
			ErrorsByKind: make(map[string]uint64),
		},
	}
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) LineRead() {
	c.linesTotal.Inc()
	c.mu.Lock()
	c.snap.Lines++
	c.mu.Unlock()
}

func (c *Collector) EventDecoded(tag string) {
	c.eventsTotal.WithLabelValues(tag).Inc()
	c.mu.Lock()
	c.snap.Events++
	c.snap.EventsByTag[tag]++
	c.mu.Unlock()
}

func (c *Collector) DecodeFailed(reason string) {
	c.decodeErrors.WithLabelValues(reason).Inc()
	c.mu.Lock()
	c.snap.DecodeErrors++
	c.snap.ErrorsByKind[reason]++
	c.mu.Unlock()
}

func (c *Collector) HeaderRowSkipped() {
	c.headerRows.Inc()
	c.mu.Lock()
	c.snap.HeaderRows++
	c.mu.Unlock()
}

func (c *Collector) PassthroughLine() {
	c.passthroughLines.Inc()
	c.mu.Lock()
	c.snap.Passthrough++
	c.mu.Unlock()
}

func (c *Collector) TaskNameRegistered() {
	c.taskNames.Inc()
	c.mu.Lock()
	c.snap.TaskNames++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current totals.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.snap
	out.EventsByTag = make(map[string]uint64, len(c.snap.EventsByTag))
	for k, v := range c.snap.EventsByTag {
		out.EventsByTag[k] = v
	}
	out.ErrorsByKind = make(map[string]uint64, len(c.snap.ErrorsByKind))
	for k, v := range c.snap.ErrorsByKind {
		out.ErrorsByKind[k] = v
	}
	return out
}
