package schedule

// MarkerKind classifies a point marker on a task timeline.
type MarkerKind int

const (
	MarkerDelay MarkerKind = iota
	MarkerDelayUntil
	MarkerCreate
	MarkerDelete
	MarkerQueueReceive
	MarkerQueueSend
)

var markerKindNames = [...]string{
	MarkerDelay:        "delay",
	MarkerDelayUntil:   "delay_until",
	MarkerCreate:       "create",
	MarkerDelete:       "delete",
	MarkerQueueReceive: "queue_receive",
	MarkerQueueSend:    "queue_send",
}

func (k MarkerKind) String() string {
	if int(k) >= 0 && int(k) < len(markerKindNames) {
		return markerKindNames[k]
	}
	return "unknown"
}

// MarshalText renders the kind by name.
func (k MarkerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Interval is a busy span of a task, from switched-in to switched-out tick.
type Interval struct {
	TaskID uint32 `json:"task_id"`
	Start  uint32 `json:"start_tick"`
	End    uint32 `json:"end_tick"`
}

// Ticks returns the interval length.
func (iv Interval) Ticks() uint32 {
	if iv.End < iv.Start {
		return 0
	}
	return iv.End - iv.Start
}

// Marker is a point event on a task timeline.
//
// Value holds the delay for delay markers, the affected task id for create
// and delete markers, and the queue id for queue markers. TargetIndex and
// QueueIndex are -1 when not applicable or unknown.
type Marker struct {
	Kind        MarkerKind `json:"kind"`
	TaskID      uint32     `json:"task_id"`
	Tick        uint32     `json:"tick"`
	Value       uint32     `json:"value"`
	Tag         string     `json:"eventtype"`
	TargetIndex int        `json:"target_index"`
	QueueIndex  int        `json:"queue_index"`
}

// Timeline is everything reconstructed for one task.
type Timeline struct {
	TaskID    uint32     `json:"task_id"`
	Name      string     `json:"task_name"`
	Intervals []Interval `json:"intervals"`
	Markers   []Marker   `json:"markers"`
}

// BusyTicks sums the lengths of all busy intervals.
func (t *Timeline) BusyTicks() uint64 {
	var total uint64
	for _, iv := range t.Intervals {
		total += uint64(iv.Ticks())
	}
	return total
}

// Schedule is the reconstructed view of a trace.
type Schedule struct {
	Timelines  map[uint32]*Timeline `json:"-"`
	TaskOrder  []uint32             `json:"task_order"`
	QueueOrder []uint32             `json:"queue_order"`

	minTick, maxTick uint32
	hasTicks         bool
}

// Timeline returns the timeline of a task, or nil.
func (s *Schedule) Timeline(taskID uint32) *Timeline {
	return s.Timelines[taskID]
}

// Ordered returns the timelines in task order.
func (s *Schedule) Ordered() []*Timeline {
	out := make([]*Timeline, 0, len(s.TaskOrder))
	for _, id := range s.TaskOrder {
		out = append(out, s.Timelines[id])
	}
	return out
}

// Span returns the smallest and largest tick of the trace. ok is false for
// an empty trace.
func (s *Schedule) Span() (first, last uint32, ok bool) {
	return s.minTick, s.maxTick, s.hasTicks
}

// Utilization returns the share of the trace span a task spent switched in.
// It is 0 for unknown tasks and for traces spanning no ticks.
func (s *Schedule) Utilization(taskID uint32) float64 {
	tl := s.Timelines[taskID]
	if tl == nil || !s.hasTicks || s.maxTick == s.minTick {
		return 0
	}
	return float64(tl.BusyTicks()) / float64(s.maxTick-s.minTick)
}

// NameLookup resolves task ids to names. *tasknames.Table satisfies it.
type NameLookup interface {
	Lookup(id uint32) (string, bool)
}

// ApplyNames replaces timeline names with registered ones where known.
func (s *Schedule) ApplyNames(names NameLookup) {
	for id, tl := range s.Timelines {
		if name, ok := names.Lookup(id); ok {
			tl.Name = name
		}
	}
}

// QueueIndex returns the first-seen index of a queue id, or -1.
func (s *Schedule) QueueIndex(queueID uint32) int {
	for i, q := range s.QueueOrder {
		if q == queueID {
			return i
		}
	}
	return -1
}
