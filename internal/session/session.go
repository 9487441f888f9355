package session

import (
	"context"
	"errors"
	"io"
	"iter"

	"go.uber.org/zap"

	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/tasknames"
)

// LineReader yields console lines without their terminator.
// *linereader.Assembler satisfies it.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// Recorder receives per-line counters. *metrics.Collector satisfies it.
type Recorder interface {
	LineRead()
	EventDecoded(tag string)
	DecodeFailed(reason string)
	HeaderRowSkipped()
	PassthroughLine()
	TaskNameRegistered()
}

type nopRecorder struct{}

func (nopRecorder) LineRead()           {}
func (nopRecorder) EventDecoded(string) {}
func (nopRecorder) DecodeFailed(string) {}
func (nopRecorder) HeaderRowSkipped()   {}
func (nopRecorder) PassthroughLine()    {}
func (nopRecorder) TaskNameRegistered() {}

// Decode failure reasons reported to the Recorder.
const (
	ReasonMalformed   = "malformed"
	ReasonFieldParse  = "field_parse"
	ReasonUnknownCode = "unknown_code"
	ReasonExitCode    = "exit_code"
	ReasonOther       = "other"
)

// Option configures a Session.
type Option func(*Session)

// WithDecoder replaces the default current-version decoder.
func WithDecoder(d *protocol.Decoder) Option {
	return func(s *Session) { s.decoder = d }
}

// WithLogger sets the logger used for device pass-through and decode warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the counter sink.
func WithMetrics(r Recorder) Option {
	return func(s *Session) { s.metrics = r }
}

// WithNameTable makes the session fill an existing table.
func WithNameTable(t *tasknames.Table) Option {
	return func(s *Session) { s.names = t }
}

type state int

const (
	stateRunning state = iota
	stateFinished
	stateUnterminated
	stateFailed
)

// Session consumes one device run: lines until FINISH_FLAG or end of input.
// It is single-pass and not safe for concurrent use, except for Names which
// may be peeked at any time.
type Session struct {
	lines   LineReader
	decoder *protocol.Decoder
	names   *tasknames.Table
	logger  *zap.Logger
	metrics Recorder

	state    state
	exitCode int32
	fatal    error
}

// New creates a session reading from lines.
func New(lines LineReader, opts ...Option) *Session {
	s := &Session{
		lines:   lines,
		decoder: protocol.NewDecoder(protocol.VersionCurrent),
		logger:  zap.NewNop(),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.names == nil {
		s.names = tasknames.New()
	}
	return s
}

// Next returns the next canonical event. It returns io.EOF once FINISH_FLAG
// was seen or the input ended. A malformed FINISH_FLAG is returned as an
// error matching protocol.ErrExitCodeParse, and every later call returns it
// again. Read errors other than end of input are returned unchanged and do
// not end the session.
func (s *Session) Next(ctx context.Context) (protocol.Event, error) {
	for {
		switch s.state {
		case stateFailed:
			return protocol.Event{}, s.fatal
		case stateFinished, stateUnterminated:
			return protocol.Event{}, io.EOF
		}

		line, err := s.lines.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			s.state = stateUnterminated
			s.logger.Warn("Input ended without finish flag")
			return protocol.Event{}, io.EOF
		}
		if err != nil {
			return protocol.Event{}, err
		}

		s.metrics.LineRead()

		if ev, ok := s.handleLine(line); ok {
			return ev, nil
		}
	}
}

// handleLine dispatches one line by tag. It reports ok when the line carried
// a canonical event.
func (s *Session) handleLine(line string) (protocol.Event, bool) {
	l, ok := protocol.SplitLine(line)
	if !ok {
		s.logger.Debug("Ignoring untagged line", zap.String("line", line))
		return protocol.Event{}, false
	}

	switch l.Tag {
	case protocol.CommandTaskDebug, protocol.CommandQueueDebug, protocol.CommandTickDebug:
		ev, err := s.decoder.Decode(l.Tag, l.Payload)
		if err == nil {
			s.metrics.EventDecoded(ev.Tag)
			return ev, true
		}
		if errors.Is(err, protocol.ErrHeaderRow) {
			s.metrics.HeaderRowSkipped()
			return protocol.Event{}, false
		}
		s.metrics.DecodeFailed(Reason(err))
		s.logger.Warn("Skipping undecodable line", decodeFields(l, err)...)

	case protocol.CommandTaskName:
		entry := s.names.Add(protocol.ParseTaskName(l.Payload))
		s.metrics.TaskNameRegistered()
		if !entry.Valid {
			s.logger.Warn("Task name row has no numeric id", zap.String("row", entry.Row))
		}

	case protocol.CommandFinishFlag:
		code, err := protocol.ParseExitCode(l.Payload)
		if err != nil {
			s.metrics.DecodeFailed(ReasonExitCode)
			s.logger.Error("Invalid finish flag", zap.String("payload", l.Payload), zap.Error(err))
			s.fatal = err
			s.state = stateFailed
			return protocol.Event{}, false
		}
		s.exitCode = code
		s.state = stateFinished
		s.logger.Info("Device finished", zap.Int32("exit_code", code))

	default:
		s.metrics.PassthroughLine()
		s.logger.Info("Device", zap.String("tag", l.Tag), zap.String("payload", l.Payload))
	}

	return protocol.Event{}, false
}

// Collect drains the session. On a read error or a fatal finish flag it
// returns the events gathered so far together with the error.
func (s *Session) Collect(ctx context.Context) ([]protocol.Event, error) {
	var events []protocol.Event
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

// All ranges over the remaining events. A non-EOF error is yielded once and
// ends the iteration.
func (s *Session) All(ctx context.Context) iter.Seq2[protocol.Event, error] {
	return func(yield func(protocol.Event, error) bool) {
		for {
			ev, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

// ExitCode returns the device exit code. It returns
// protocol.ErrUnterminatedSession while the session runs or when input ended
// without FINISH_FLAG, and the fatal parse error after a bad FINISH_FLAG.
func (s *Session) ExitCode() (int32, error) {
	switch s.state {
	case stateFinished:
		return s.exitCode, nil
	case stateFailed:
		return 0, s.fatal
	default:
		return 0, protocol.ErrUnterminatedSession
	}
}

// Names returns the session's task name table.
func (s *Session) Names() *tasknames.Table {
	return s.names
}

// Finished reports whether FINISH_FLAG was observed and parsed.
func (s *Session) Finished() bool {
	return s.state == stateFinished
}

// Reason maps a decode error to its metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformedLine):
		return ReasonMalformed
	case errors.Is(err, protocol.ErrFieldParse):
		return ReasonFieldParse
	case errors.Is(err, protocol.ErrUnknownEventCode):
		return ReasonUnknownCode
	case errors.Is(err, protocol.ErrExitCodeParse):
		return ReasonExitCode
	default:
		return ReasonOther
	}
}

func decodeFields(l protocol.Line, err error) []zap.Field {
	fields := []zap.Field{
		zap.String("tag", l.Tag),
		zap.String("payload", l.Payload),
		zap.Error(err),
	}

	var malformed *protocol.MalformedLineError
	var parse *protocol.FieldParseError
	var code *protocol.UnknownEventCodeError

	switch {
	case errors.As(err, &malformed):
		fields = append(fields, zap.Ints("want_fields", malformed.Want), zap.Int("got_fields", malformed.Got))
	case errors.As(err, &parse):
		fields = append(fields, zap.String("field", parse.Field), zap.String("value", parse.Value))
	case errors.As(err, &code):
		fields = append(fields, zap.Uint32("code", code.Code))
	}
	return fields
}
