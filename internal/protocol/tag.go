package protocol

import "strings"

// Command tags recognized on the wire.
const (
	CommandTaskDebug  = "TASK_DEBUG"
	CommandQueueDebug = "QUEUE_DEBUG"
	CommandTickDebug  = "TICK_DEBUG"
	CommandTaskName   = "TASK_NAME"
	CommandFinishFlag = "FINISH_FLAG"
)

const (
	colorReset     = "\x1b[0m"
	bareColorReset = "[0m"
)

// Line is a console line split into its command tag and payload.
type Line struct {
	Tag     string
	Payload string
}

// SplitLine splits "<level> <(time)> <TAG>:<payload>" on the first colon.
// The third whitespace separated token of the head is the tag; the first two
// are console prefix noise. Lines without a colon or without a third head
// token are not trace lines and report ok == false.
func SplitLine(line string) (Line, bool) {
	head, payload, found := strings.Cut(line, ":")
	if !found {
		return Line{}, false
	}

	fields := strings.Fields(head)
	if len(fields) < 3 {
		return Line{}, false
	}

	return Line{Tag: fields[2], Payload: StripColorReset(payload)}, true
}

// StripColorReset removes every ANSI color reset sequence from s, including
// the bare "[0m" left behind when a terminal already ate the ESC byte.
func StripColorReset(s string) string {
	s = strings.ReplaceAll(s, colorReset, "")
	return strings.ReplaceAll(s, bareColorReset, "")
}

// IsRecognized reports whether tag is one of the five protocol tags.
func IsRecognized(tag string) bool {
	switch tag {
	case CommandTaskDebug, CommandQueueDebug, CommandTickDebug, CommandTaskName, CommandFinishFlag:
		return true
	}
	return false
}
