// Package attributes evaluates user expressions for span export: custom
// attributes, trace IDs, and parent span IDs.
//
// Custom attributes are evaluated per task timeline (TaskEnv: task_id,
// task_name, busy_ticks, utilization, intervals, markers, env). Trace and
// parent IDs are evaluated once per session (SessionEnv: session_id, source,
// exit_code, finished, env). All use the expr language.
//
// Three evaluators:
//   - Evaluator: Evaluates custom attribute expressions
//   - TraceIDEvaluator: Evaluates and validates trace ID expressions (32 hex chars)
//   - ParentIDEvaluator: Evaluates and validates parent span ID expressions (16 hex chars)
//
// Invalid trace IDs are hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
