package schedule

import (
	"cmp"
	"slices"

	"github.com/mrzor/rtos-trace/internal/protocol"
)

// Reconstruct derives busy intervals, markers and id orderings from a full
// event list. It does not modify events and returns the same result for the
// same input.
func Reconstruct(events []protocol.Event) *Schedule {
	s := &Schedule{
		Timelines:  make(map[uint32]*Timeline),
		TaskOrder:  []uint32{},
		QueueOrder: []uint32{},
	}

	groups := make(map[uint32][]protocol.Event)
	queueIndex := make(map[uint32]int)

	for _, ev := range events {
		groups[ev.TaskID] = append(groups[ev.TaskID], ev)

		if ev.IsQueueEvent() {
			if _, seen := queueIndex[ev.AffectedObject]; !seen {
				queueIndex[ev.AffectedObject] = len(s.QueueOrder)
				s.QueueOrder = append(s.QueueOrder, ev.AffectedObject)
			}
		}

		if !s.hasTicks || ev.Tick < s.minTick {
			s.minTick = ev.Tick
		}
		if !s.hasTicks || ev.Tick > s.maxTick {
			s.maxTick = ev.Tick
		}
		s.hasTicks = true
	}

	for id := range groups {
		s.TaskOrder = append(s.TaskOrder, id)
	}
	slices.Sort(s.TaskOrder)

	taskIndex := make(map[uint32]int, len(s.TaskOrder))
	for i, id := range s.TaskOrder {
		taskIndex[id] = i
	}

	for id, group := range groups {
		sortGroup(group)
		s.Timelines[id] = &Timeline{
			TaskID:    id,
			Name:      group[0].TaskName,
			Intervals: intervals(id, group),
			Markers:   markers(id, group, taskIndex, queueIndex),
		}
	}

	return s
}

// sortGroup orders a task's events by timestamp, then by tick. Both sorts are
// stable so ties keep arrival order.
func sortGroup(group []protocol.Event) {
	slices.SortStableFunc(group, func(a, b protocol.Event) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	slices.SortStableFunc(group, func(a, b protocol.Event) int {
		return cmp.Compare(a.Tick, b.Tick)
	})
}

// intervals pairs switched-in and switched-out events of one sorted group.
// A second switched-in before a switched-out replaces the open start. A start
// still open at the end runs to the group's largest tick.
func intervals(taskID uint32, group []protocol.Event) []Interval {
	out := []Interval{}

	var open uint32
	var isOpen bool
	var maxTick uint32

	for _, ev := range group {
		maxTick = max(maxTick, ev.Tick)

		switch ev.Tag {
		case protocol.TagTaskSwitchedIn:
			open, isOpen = ev.Tick, true
		case protocol.TagTaskSwitchedOut:
			if isOpen {
				out = append(out, Interval{TaskID: taskID, Start: open, End: ev.Tick})
				isOpen = false
			}
		}
	}

	if isOpen {
		out = append(out, Interval{TaskID: taskID, Start: open, End: maxTick})
	}
	return out
}

func markers(taskID uint32, group []protocol.Event, taskIndex, queueIndex map[uint32]int) []Marker {
	out := []Marker{}

	for _, ev := range group {
		m := Marker{
			TaskID:      taskID,
			Tick:        ev.Tick,
			Tag:         ev.Tag,
			TargetIndex: -1,
			QueueIndex:  -1,
		}

		switch {
		case ev.Tag == protocol.TagTaskDelay:
			m.Kind, m.Value = MarkerDelay, ev.Delay
		case ev.Tag == protocol.TagTaskDelayUntil:
			m.Kind, m.Value = MarkerDelayUntil, ev.Delay
		case ev.Tag == protocol.TagTaskCreate:
			m.Kind, m.Value = MarkerCreate, ev.AffectedObject
			m.TargetIndex = indexOr(taskIndex, ev.AffectedObject)
		case ev.Tag == protocol.TagTaskDelete:
			m.Kind, m.Value = MarkerDelete, ev.AffectedObject
			m.TargetIndex = indexOr(taskIndex, ev.AffectedObject)
		case ev.IsQueueReceive():
			m.Kind, m.Value = MarkerQueueReceive, ev.AffectedObject
			m.QueueIndex = indexOr(queueIndex, ev.AffectedObject)
		case ev.IsQueueSend():
			m.Kind, m.Value = MarkerQueueSend, ev.AffectedObject
			m.QueueIndex = indexOr(queueIndex, ev.AffectedObject)
		default:
			continue
		}

		out = append(out, m)
	}
	return out
}

func indexOr(index map[uint32]int, id uint32) int {
	if i, ok := index[id]; ok {
		return i
	}
	return -1
}
