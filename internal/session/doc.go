// Package session drives one device run from console lines to canonical
// events.
//
// A session pulls lines on demand, dispatches them by command tag and keeps
// the run's state: the task name table and the exit code announced by
// FINISH_FLAG.
//
//	lines ──► SplitLine ──┬─ TASK/QUEUE/TICK_DEBUG ──► Decoder ──► Event
//	                      ├─ TASK_NAME ──► tasknames.Table
//	                      ├─ FINISH_FLAG ──► exit code, end of run
//	                      └─ anything else ──► logged as device output
//
// Per-line decode failures are logged and skipped. Only an unparsable
// FINISH_FLAG is fatal.
package session
