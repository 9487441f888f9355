// Package tasknames holds the task id to name mapping announced by TASK_NAME
// lines.
//
// Table follows command-query separation:
//
// Queries (read-only):
//   - Lookup(id) - Latest name for a task id
//   - Entries() - All rows in registration order
//   - Len() - Row count
//
// Commands (mutations):
//   - Add(row) - Append a "task_id,name" row
//
// Rows are never removed. Thread-safe with RWMutex.
package tasknames
