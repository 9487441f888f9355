package protocol

// TaskEventKind is the event code carried by TASK_DEBUG lines.
type TaskEventKind uint8

// Task event codes as written by the kernel trace macros.
const (
	TaskCreate TaskEventKind = iota
	TaskCreateFailed
	TaskDelete
	TaskDelay
	TaskDelayUntil
	TaskSwitchedIn
	TaskSwitchedOut
)

// Symbolic names of task events.
const (
	TagTaskCreate       = "traceTASK_CREATE"
	TagTaskCreateFailed = "traceTASK_CREATE_FAILED"
	TagTaskDelete       = "traceTASK_DELETE"
	TagTaskDelay        = "traceTASK_DELAY"
	TagTaskDelayUntil   = "traceTASK_DELAY_UNTIL"
	TagTaskSwitchedIn   = "traceTASK_SWITCHED_IN"
	TagTaskSwitchedOut  = "traceTASK_SWITCHED_OUT"
)

var taskEventTags = [...]string{
	TaskCreate:       TagTaskCreate,
	TaskCreateFailed: TagTaskCreateFailed,
	TaskDelete:       TagTaskDelete,
	TaskDelay:        TagTaskDelay,
	TaskDelayUntil:   TagTaskDelayUntil,
	TaskSwitchedIn:   TagTaskSwitchedIn,
	TaskSwitchedOut:  TagTaskSwitchedOut,
}

// TaskEventKindFromCode maps a wire code to its kind.
func TaskEventKindFromCode(code uint32) (TaskEventKind, error) {
	if code >= uint32(len(taskEventTags)) {
		return 0, &UnknownEventCodeError{Channel: ChannelTask, Code: code}
	}
	return TaskEventKind(code), nil
}

// String returns the protocol tag, e.g. "traceTASK_CREATE".
func (k TaskEventKind) String() string {
	if int(k) < len(taskEventTags) {
		return taskEventTags[k]
	}
	return "traceTASK_UNKNOWN"
}

// QueueEventKind is the event code carried by QUEUE_DEBUG lines.
type QueueEventKind uint8

// Queue event codes as written by the kernel trace macros.
const (
	QueueReceive QueueEventKind = iota
	QueueReceiveFailed
	QueueReceiveFromISR
	QueueReceiveFromISRFailed
	QueueSend
	QueueSendFailed
	QueueSendFromISR
	QueueSendFromISRFailed
	QueueSetSend
)

// Symbolic names of queue events.
const (
	TagQueueReceive              = "traceQUEUE_RECEIVE"
	TagQueueReceiveFailed        = "traceQUEUE_RECEIVE_FAILED"
	TagQueueReceiveFromISR       = "traceQUEUE_RECEIVE_FROM_ISR"
	TagQueueReceiveFromISRFailed = "traceQUEUE_RECEIVE_FROM_ISR_FAILED"
	TagQueueSend                 = "traceQUEUE_SEND"
	TagQueueSendFailed           = "traceQUEUE_SEND_FAILED"
	TagQueueSendFromISR          = "traceQUEUE_SEND_FROM_ISR"
	TagQueueSendFromISRFailed    = "traceQUEUE_SEND_FROM_ISR_FAILED"
	TagQueueSetSend              = "traceQUEUE_SET_SEND"
)

var queueEventTags = [...]string{
	QueueReceive:              TagQueueReceive,
	QueueReceiveFailed:        TagQueueReceiveFailed,
	QueueReceiveFromISR:       TagQueueReceiveFromISR,
	QueueReceiveFromISRFailed: TagQueueReceiveFromISRFailed,
	QueueSend:                 TagQueueSend,
	QueueSendFailed:           TagQueueSendFailed,
	QueueSendFromISR:          TagQueueSendFromISR,
	QueueSendFromISRFailed:    TagQueueSendFromISRFailed,
	QueueSetSend:              TagQueueSetSend,
}

// QueueEventKindFromCode maps a wire code to its kind.
func QueueEventKindFromCode(code uint32) (QueueEventKind, error) {
	if code >= uint32(len(queueEventTags)) {
		return 0, &UnknownEventCodeError{Channel: ChannelQueue, Code: code}
	}
	return QueueEventKind(code), nil
}

// String returns the protocol tag, e.g. "traceQUEUE_SEND".
func (k QueueEventKind) String() string {
	if int(k) < len(queueEventTags) {
		return queueEventTags[k]
	}
	return "traceQUEUE_UNKNOWN"
}

// TickEventKind is the kind of a TICK_DEBUG line. There is only one.
type TickEventKind uint8

// IncrementTick is emitted on every kernel tick.
const IncrementTick TickEventKind = 0

// TagIncrementTick is the symbolic name of the tick event.
const TagIncrementTick = "traceTASK_INCREMENT_TICK"

// String returns the protocol tag.
func (TickEventKind) String() string {
	return TagIncrementTick
}
