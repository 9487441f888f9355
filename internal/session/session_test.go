package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mrzor/rtos-trace/internal/linereader"
	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/tasknames"
)

func fromText(text string, opts ...Option) *Session {
	a := linereader.New(linereader.NewReaderSource(strings.NewReader(text)))
	return New(a, opts...)
}

// countingRecorder tallies Recorder calls.
type countingRecorder struct {
	lines       int
	events      map[string]int
	failures    map[string]int
	headers     int
	passthrough int
	names       int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{events: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) LineRead()                  { r.lines++ }
func (r *countingRecorder) EventDecoded(tag string)    { r.events[tag]++ }
func (r *countingRecorder) DecodeFailed(reason string) { r.failures[reason]++ }
func (r *countingRecorder) HeaderRowSkipped()          { r.headers++ }
func (r *countingRecorder) PassthroughLine()           { r.passthrough++ }
func (r *countingRecorder) TaskNameRegistered()        { r.names++ }

const fullRun = "ets Jun  8 2016\r\n" +
	"I (10) TASK_DEBUG: Message Type;Tick;Timestamp;Task ID;Affected Task ID;Delay;Task Name\r\n" +
	"I (11) TASK_DEBUG: 5;10;1000;1;0;0;printTask\r\n" +
	"I (12) QUEUE_DEBUG: Message Type;Queue;Tick;Timestamp;Task ID;Ticks to wait;Task Name\r\n" +
	"I (13) QUEUE_DEBUG: 4;40;12;1100;1;5;printTask\r\n" +
	"I (14) TICK_DEBUG: C Time;Timestamp;New Tick;Task ID;Task Name\r\n" +
	"I (15) TICK_DEBUG: 12;1200;13;1;printTask\r\n" +
	"I (16) TASK_NAME: 1;printTask\r\n" +
	"I (17) app_main: hello from the device\r\n" +
	"I (18) TASK_DEBUG: 6;20;2000;1;0;0;printTask\x1b[0m\r\n" +
	"I (19) FINISH_FLAG: 7\r\n" +
	"I (20) TASK_DEBUG: 5;30;3000;2;0;0;late\r\n"

func TestSession_FullRun(t *testing.T) {
	rec := newCountingRecorder()
	s := fromText(fullRun, WithMetrics(rec), WithLogger(zap.NewNop()))

	events, err := s.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, protocol.Event{
		Tag: protocol.TagTaskSwitchedIn, Tick: 10, Timestamp: 1000, TaskID: 1, TaskName: "printTask",
	}, events[0])
	assert.Equal(t, protocol.TagQueueSend, events[1].Tag)
	assert.Equal(t, uint32(40), events[1].AffectedObject)
	assert.Equal(t, uint32(5), events[1].Delay)
	assert.Equal(t, protocol.TagIncrementTick, events[2].Tag)
	assert.Equal(t, uint32(1), events[2].Delay)
	assert.Equal(t, protocol.TagTaskSwitchedOut, events[3].Tag)
	assert.Equal(t, "printTask", events[3].TaskName)

	assert.True(t, s.Finished())
	code, err := s.ExitCode()
	require.NoError(t, err)
	assert.Equal(t, int32(7), code)

	name, ok := s.Names().Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "printTask", name)

	assert.Equal(t, 3, rec.headers)
	assert.Equal(t, 1, rec.passthrough)
	assert.Equal(t, 1, rec.names)
	assert.Equal(t, 2, rec.events[protocol.TagTaskSwitchedIn]+rec.events[protocol.TagTaskSwitchedOut])
	assert.Empty(t, rec.failures)
	// Nothing after FINISH_FLAG is read.
	assert.Equal(t, 11, rec.lines)
}

func TestSession_NextAfterFinishIsEOF(t *testing.T) {
	s := fromText("I (1) FINISH_FLAG: 0\nI (2) TASK_DEBUG: 5;1;1;1;0;0;a\n")

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	code, err := s.ExitCode()
	require.NoError(t, err)
	assert.Equal(t, int32(0), code)
}

func TestSession_NegativeExitCode(t *testing.T) {
	s := fromText("I (1) FINISH_FLAG: -1\n")

	_, err := s.Collect(context.Background())
	require.NoError(t, err)

	code, err := s.ExitCode()
	require.NoError(t, err)
	assert.Equal(t, int32(-1), code)
}

func TestSession_FatalFinishFlag(t *testing.T) {
	rec := newCountingRecorder()
	s := fromText("I (1) TASK_DEBUG: 5;1;1;1;0;0;a\nI (2) FINISH_FLAG: abc\nI (3) TASK_DEBUG: 6;2;2;1;0;0;a\n", WithMetrics(rec))

	events, err := s.Collect(context.Background())
	assert.ErrorIs(t, err, protocol.ErrExitCodeParse)
	assert.Len(t, events, 1)

	var parseErr *protocol.ExitCodeParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "abc", parseErr.Payload)

	// The failure sticks.
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, protocol.ErrExitCodeParse)

	_, err = s.ExitCode()
	assert.ErrorIs(t, err, protocol.ErrExitCodeParse)
	assert.False(t, s.Finished())
	assert.Equal(t, 1, rec.failures[ReasonExitCode])
}

func TestSession_Unterminated(t *testing.T) {
	s := fromText("I (1) TASK_DEBUG: 5;1;1;1;0;0;a\nI (2) TASK_DEBUG: 6;2;2;1;0;0;a")

	events, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 2)

	_, err = s.ExitCode()
	assert.ErrorIs(t, err, protocol.ErrUnterminatedSession)
	assert.False(t, s.Finished())
}

func TestSession_ExitCodeWhileRunning(t *testing.T) {
	s := fromText("I (1) TASK_DEBUG: 5;1;1;1;0;0;a\nI (2) FINISH_FLAG: 3\n")

	_, err := s.Next(context.Background())
	require.NoError(t, err)

	_, err = s.ExitCode()
	assert.ErrorIs(t, err, protocol.ErrUnterminatedSession)
}

func TestSession_RecoverableErrorsAreSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := newCountingRecorder()

	input := "I (1) TASK_DEBUG: 5;1;1\n" + // wrong count
		"I (2) TASK_DEBUG: 5;x;1;1;0;0;a\n" + // bad tick
		"I (3) TASK_DEBUG: 9;1;1;1;0;0;a\n" + // unknown code
		"I (4) QUEUE_DEBUG: 12;1;1;1;1;0;a\n" + // unknown queue code
		"I (5) TASK_DEBUG: 5;1;1;1;0;0;a\n" +
		"I (6) FINISH_FLAG: 0\n"

	s := fromText(input, WithLogger(zap.New(core)), WithMetrics(rec))

	events, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.TagTaskSwitchedIn, events[0].Tag)

	assert.Equal(t, 1, rec.failures[ReasonMalformed])
	assert.Equal(t, 1, rec.failures[ReasonFieldParse])
	assert.Equal(t, 2, rec.failures[ReasonUnknownCode])

	warnings := logs.FilterMessage("Skipping undecodable line").All()
	require.Len(t, warnings, 4)
	assert.Equal(t, "tick", warnings[1].ContextMap()["field"])
	assert.Equal(t, "x", warnings[1].ContextMap()["value"])
}

func TestSession_HeaderRowsAreSilent(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	s := fromText("I (1) TICK_DEBUG: C Time;Timestamp;New Tick;Task ID;Task Name\nI (2) FINISH_FLAG: 0\n",
		WithLogger(zap.New(core)))

	events, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, logs.Len())
}

func TestSession_PassthroughLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	s := fromText("I (1) wifi: connected\nI (2) FINISH_FLAG: 0\n", WithLogger(zap.New(core)))
	_, err := s.Collect(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("Device").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "wifi", entries[0].ContextMap()["tag"])
	assert.Equal(t, " connected", entries[0].ContextMap()["payload"])
}

func TestSession_LegacyDecoder(t *testing.T) {
	s := fromText("I (1) TASK_DEBUG: 5;1;1;1;0;0\nI (2) FINISH_FLAG: 0\n",
		WithDecoder(protocol.NewDecoder(protocol.VersionLegacy)))

	events, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].TaskName)
}

func TestSession_SharedNameTable(t *testing.T) {
	tbl := tasknames.New()
	s := fromText("I (1) TASK_NAME: 4;IDLE\nI (2) TASK_NAME: 5;odd;name\nI (3) FINISH_FLAG: 0\n", WithNameTable(tbl))

	_, err := s.Collect(context.Background())
	require.NoError(t, err)

	assert.Same(t, tbl, s.Names())
	entries := tbl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "4,IDLE", entries[0].Row)
	assert.Equal(t, "5,odd,name", entries[1].Row)
}

func TestSession_All(t *testing.T) {
	s := fromText("I (1) TASK_DEBUG: 5;1;1;1;0;0;a\nI (2) TASK_DEBUG: 6;2;2;1;0;0;a\nI (3) FINISH_FLAG: 0\n")

	var tags []string
	for ev, err := range s.All(context.Background()) {
		require.NoError(t, err)
		tags = append(tags, ev.Tag)
	}
	assert.Equal(t, []string{protocol.TagTaskSwitchedIn, protocol.TagTaskSwitchedOut}, tags)
}

func TestSession_AllStopsOnFatal(t *testing.T) {
	s := fromText("I (1) FINISH_FLAG: nope\n")

	var errs []error
	for _, err := range s.All(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], protocol.ErrExitCodeParse)
}

// failingReader fails once, then behaves like an empty stream.
type failingReader struct {
	err   error
	calls int
}

func (f *failingReader) ReadLine(context.Context) (string, error) {
	f.calls++
	if f.calls == 1 {
		return "", f.err
	}
	return "", io.EOF
}

func TestSession_ReadErrorDoesNotTerminate(t *testing.T) {
	boom := errors.New("serial port closed")
	s := New(&failingReader{err: boom})

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&protocol.MalformedLineError{}, ReasonMalformed},
		{&protocol.FieldParseError{}, ReasonFieldParse},
		{&protocol.UnknownEventCodeError{}, ReasonUnknownCode},
		{&protocol.ExitCodeParseError{}, ReasonExitCode},
		{errors.New("x"), ReasonOther},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}
