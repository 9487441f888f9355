// Package storage persists decoded trace sessions.
//
// Two backends are provided:
//   - CSV files: one event file (eventtype,tick,timestamp,taskid,
//     affected_object,delay,task_name) and one mapping file
//     (taskid,task_name), the layout consumed by the schedule viewer
//   - SQLite: many sessions in one database, keyed by xid, with the device
//     exit code recorded when the session finished
//
// Both implement Sink; MultiSink writes to several at once.
package storage
