package protocol

// TaskRecord is a decoded TASK_DEBUG payload.
type TaskRecord struct {
	Kind           TaskEventKind
	Tick           uint32
	Timestamp      uint32
	TaskID         uint32
	AffectedTaskID uint32
	Delay          uint32
	TaskName       string
}

// QueueRecord is a decoded QUEUE_DEBUG payload.
type QueueRecord struct {
	Kind        QueueEventKind
	QueueID     uint32
	Tick        uint32
	Timestamp   uint32
	TaskID      uint32
	TicksToWait uint32
	TaskName    string
}

// TickRecord is a decoded TICK_DEBUG payload.
type TickRecord struct {
	Tick        uint32
	Timestamp   uint32
	NewTickTime uint32
	TaskID      uint32
	TaskName    string
}

// Event is the canonical representation shared by all three channels.
// Tag always holds the protocol's symbolic name for the event code.
type Event struct {
	Tag            string `json:"eventtype"`
	Tick           uint32 `json:"tick"`
	Timestamp      uint32 `json:"timestamp"`
	TaskID         uint32 `json:"taskid"`
	AffectedObject uint32 `json:"affected_object"`
	Delay          uint32 `json:"delay"`
	TaskName       string `json:"task_name"`
}

// FromTask normalizes a task record. AffectedObject is the affected task.
func FromTask(r TaskRecord) Event {
	return Event{
		Tag:            r.Kind.String(),
		Tick:           r.Tick,
		Timestamp:      r.Timestamp,
		TaskID:         r.TaskID,
		AffectedObject: r.AffectedTaskID,
		Delay:          r.Delay,
		TaskName:       r.TaskName,
	}
}

// FromQueue normalizes a queue record. AffectedObject is the queue handle and
// Delay the ticks the caller was willing to wait.
func FromQueue(r QueueRecord) Event {
	return Event{
		Tag:            r.Kind.String(),
		Tick:           r.Tick,
		Timestamp:      r.Timestamp,
		TaskID:         r.TaskID,
		AffectedObject: r.QueueID,
		Delay:          r.TicksToWait,
		TaskName:       r.TaskName,
	}
}

// FromTick normalizes a tick record. Delay is NewTickTime-Tick in 32-bit
// modular arithmetic, like the kernel's tick counter.
func FromTick(r TickRecord) Event {
	return Event{
		Tag:            IncrementTick.String(),
		Tick:           r.Tick,
		Timestamp:      r.Timestamp,
		TaskID:         r.TaskID,
		AffectedObject: r.NewTickTime,
		Delay:          r.NewTickTime - r.Tick,
		TaskName:       r.TaskName,
	}
}

// IsQueueEvent reports whether the event is a queue send or receive, failed
// and ISR variants included. traceQUEUE_SET_SEND is not.
func (e Event) IsQueueEvent() bool {
	return e.IsQueueReceive() || e.IsQueueSend()
}

// IsQueueReceive reports whether the event belongs to the receive family.
func (e Event) IsQueueReceive() bool {
	switch e.Tag {
	case TagQueueReceive, TagQueueReceiveFailed, TagQueueReceiveFromISR, TagQueueReceiveFromISRFailed:
		return true
	}
	return false
}

// IsQueueSend reports whether the event belongs to the send family.
func (e Event) IsQueueSend() bool {
	switch e.Tag {
	case TagQueueSend, TagQueueSendFailed, TagQueueSendFromISR, TagQueueSendFromISRFailed:
		return true
	}
	return false
}
