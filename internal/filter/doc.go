// Package filter selects canonical events with expr-lang expressions.
//
// Expressions see the event fields as tag, tick, timestamp, task_id,
// affected_object, delay and task_name, plus is_queue. They must evaluate to
// a boolean, for example:
//
//	task_id == 1073421932 && tick < 500
//	is_queue || tag == "traceTASK_DELAY"
package filter
