// Package protocol decodes the line-oriented trace protocol printed by the
// instrumented kernel's console.
//
// A trace line looks like:
//
//	I (5123) TASK_DEBUG: 5;120;48211;1073421932;0;0;printTask
//	└──┬───┘ └───┬────┘  └──────────────┬───────────────────┘
//	  noise     tag                   payload
//
// Pipeline:
//
//	line ──→ SplitLine ──→ Line{Tag, Payload}
//	                          │
//	                          ├──→ TASK_DEBUG  ──→ DecodeTask  ──→ TaskRecord  ──┐
//	                          ├──→ QUEUE_DEBUG ──→ DecodeQueue ──→ QueueRecord ──┼──→ Event
//	                          ├──→ TICK_DEBUG  ──→ DecodeTick  ──→ TickRecord  ──┘
//	                          ├──→ TASK_NAME   ──→ ParseTaskName
//	                          └──→ FINISH_FLAG ──→ ParseExitCode
//
// Payload field counts depend on the ProtocolVersion. Decode failures are
// typed (MalformedLineError, FieldParseError, UnknownEventCodeError) and
// match the package sentinels with errors.Is. ErrHeaderRow marks the column
// header a device echoes before each channel and is not a failure.
package protocol
