package protocol

import (
	"strconv"
	"strings"
)

// Decoder parses debug channel payloads for one protocol revision.
type Decoder struct {
	version ProtocolVersion
}

// NewDecoder creates a decoder for the given revision.
func NewDecoder(version ProtocolVersion) *Decoder {
	return &Decoder{version: version}
}

// Version returns the revision the decoder accepts.
func (d *Decoder) Version() ProtocolVersion {
	return d.version
}

// Decode routes a debug payload by command tag and returns the canonical
// event. TASK_NAME and FINISH_FLAG are session control tags and, like any
// other tag, yield ErrUnknownTag here.
func (d *Decoder) Decode(tag, payload string) (Event, error) {
	switch tag {
	case CommandTaskDebug:
		r, err := d.DecodeTask(payload)
		if err != nil {
			return Event{}, err
		}
		return FromTask(r), nil
	case CommandQueueDebug:
		r, err := d.DecodeQueue(payload)
		if err != nil {
			return Event{}, err
		}
		return FromQueue(r), nil
	case CommandTickDebug:
		r, err := d.DecodeTick(payload)
		if err != nil {
			return Event{}, err
		}
		return FromTick(r), nil
	default:
		return Event{}, ErrUnknownTag
	}
}

// DecodeTask parses "event_code;tick;timestamp;task_id;affected_task_id;delay[;task_name]".
func (d *Decoder) DecodeTask(payload string) (TaskRecord, error) {
	f, err := d.split(ChannelTask, payload)
	if err != nil {
		return TaskRecord{}, err
	}

	code := f.uint("eventtype")
	r := TaskRecord{
		Tick:           f.uint("tick"),
		Timestamp:      f.uint("timestamp"),
		TaskID:         f.uint("taskid"),
		AffectedTaskID: f.uint("affected task id"),
		Delay:          f.uint("delay"),
		TaskName:       f.name(),
	}
	if f.err != nil {
		return TaskRecord{}, f.err
	}

	if r.Kind, err = TaskEventKindFromCode(code); err != nil {
		return TaskRecord{}, err
	}
	return r, nil
}

// DecodeQueue parses "event_code;queue_id;tick;timestamp;task_id;ticks_to_wait[;task_name]".
func (d *Decoder) DecodeQueue(payload string) (QueueRecord, error) {
	f, err := d.split(ChannelQueue, payload)
	if err != nil {
		return QueueRecord{}, err
	}

	code := f.uint("eventtype")
	r := QueueRecord{
		QueueID:     f.uint("queue"),
		Tick:        f.uint("tick"),
		Timestamp:   f.uint("timestamp"),
		TaskID:      f.uint("taskid"),
		TicksToWait: f.uint("ticks_to_wait"),
		TaskName:    f.name(),
	}
	if f.err != nil {
		return QueueRecord{}, f.err
	}

	if r.Kind, err = QueueEventKindFromCode(code); err != nil {
		return QueueRecord{}, err
	}
	return r, nil
}

// DecodeTick parses "tick;timestamp;new_tick_time;task_id[;task_name]".
func (d *Decoder) DecodeTick(payload string) (TickRecord, error) {
	f, err := d.split(ChannelTick, payload)
	if err != nil {
		return TickRecord{}, err
	}

	r := TickRecord{
		Tick:        f.uint("tick"),
		Timestamp:   f.uint("timestamp"),
		NewTickTime: f.uint("new_tick_time"),
		TaskID:      f.uint("taskid"),
		TaskName:    f.name(),
	}
	if f.err != nil {
		return TickRecord{}, f.err
	}
	return r, nil
}

// split checks the field count and the header sentinel, in that order.
func (d *Decoder) split(c Channel, payload string) (*fieldReader, error) {
	fields := strings.Split(strings.TrimSpace(payload), ";")
	if !d.version.accepts(c, len(fields)) {
		return nil, &MalformedLineError{Channel: c, Want: d.version.FieldCounts(c), Got: len(fields)}
	}

	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if fields[0] == c.HeaderSentinel() {
		return nil, ErrHeaderRow
	}

	return &fieldReader{channel: c, fields: fields, named: hasTaskName(c, len(fields))}, nil
}

// fieldReader consumes fields in order and keeps the first parse failure.
type fieldReader struct {
	channel Channel
	fields  []string
	pos     int
	named   bool
	err     error
}

func (f *fieldReader) uint(name string) uint32 {
	raw := f.fields[f.pos]
	f.pos++
	if f.err != nil {
		return 0
	}

	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		f.err = &FieldParseError{Channel: f.channel, Field: name, Value: raw, Err: err}
		return 0
	}
	return uint32(v)
}

func (f *fieldReader) name() string {
	if !f.named {
		return ""
	}
	return f.fields[f.pos]
}

// ParseTaskName normalizes a TASK_NAME payload into a "task_id,name" row.
func ParseTaskName(payload string) string {
	return strings.ReplaceAll(strings.TrimSpace(payload), ";", ",")
}

// ParseExitCode parses a FINISH_FLAG payload as a signed decimal integer.
func ParseExitCode(payload string) (int32, error) {
	trimmed := strings.TrimSpace(payload)
	v, err := strconv.ParseInt(trimmed, 10, 32)
	if err != nil {
		return 0, &ExitCodeParseError{Payload: trimmed, Err: err}
	}
	return int32(v), nil
}
