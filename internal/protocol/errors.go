package protocol

import (
	"errors"
	"fmt"
)

// Sentinels for the decode error taxonomy. Typed errors below match them
// through errors.Is.
var (
	// ErrMalformedLine reports a payload with the wrong number of fields.
	ErrMalformedLine = errors.New("malformed line")
	// ErrHeaderRow reports the CSV-style column header the device prints
	// before a channel's data. It is expected and never logged.
	ErrHeaderRow = errors.New("header row")
	// ErrFieldParse reports a field that failed numeric parsing.
	ErrFieldParse = errors.New("field parse error")
	// ErrUnknownEventCode reports an event code outside the closed set.
	ErrUnknownEventCode = errors.New("unknown event code")
	// ErrUnknownTag reports a tag the decoder has no schema for.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrExitCodeParse reports an unparsable FINISH_FLAG payload. It is the
	// only fatal error of a session.
	ErrExitCodeParse = errors.New("could not parse exit code")
	// ErrUnterminatedSession reports that input ended before FINISH_FLAG.
	ErrUnterminatedSession = errors.New("session ended without finish flag")
)

// MalformedLineError carries the expected and observed field counts.
type MalformedLineError struct {
	Channel Channel
	Want    []int
	Got     int
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("(%s) wrong format: expected %s fields, got %d", e.Channel, formatCounts(e.Want), e.Got)
}

// Is reports whether target is ErrMalformedLine.
func (e *MalformedLineError) Is(target error) bool {
	return target == ErrMalformedLine
}

// FieldParseError carries the failing field name and the parse cause.
type FieldParseError struct {
	Channel Channel
	Field   string
	Value   string
	Err     error
}

func (e *FieldParseError) Error() string {
	return fmt.Sprintf("(%s) failed to parse %s. Reason: %v", e.Channel, e.Field, e.Err)
}

// Is reports whether target is ErrFieldParse.
func (e *FieldParseError) Is(target error) bool {
	return target == ErrFieldParse
}

func (e *FieldParseError) Unwrap() error {
	return e.Err
}

// UnknownEventCodeError carries the out-of-range code.
type UnknownEventCodeError struct {
	Channel Channel
	Code    uint32
}

func (e *UnknownEventCodeError) Error() string {
	return fmt.Sprintf("(%s) unknown event code %d", e.Channel, e.Code)
}

// Is reports whether target is ErrUnknownEventCode.
func (e *UnknownEventCodeError) Is(target error) bool {
	return target == ErrUnknownEventCode
}

// ExitCodeParseError carries the raw FINISH_FLAG payload.
type ExitCodeParseError struct {
	Payload string
	Err     error
}

func (e *ExitCodeParseError) Error() string {
	return fmt.Sprintf("could not parse return value %q: %v", e.Payload, e.Err)
}

// Is reports whether target is ErrExitCodeParse.
func (e *ExitCodeParseError) Is(target error) bool {
	return target == ErrExitCodeParse
}

func (e *ExitCodeParseError) Unwrap() error {
	return e.Err
}

func formatCounts(counts []int) string {
	switch len(counts) {
	case 0:
		return "?"
	case 1:
		return fmt.Sprint(counts[0])
	}
	s := fmt.Sprint(counts[0])
	for _, c := range counts[1:] {
		s += fmt.Sprintf(" or %d", c)
	}
	return s
}
