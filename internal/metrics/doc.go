// Package metrics counts decoder activity with Prometheus collectors.
//
// All collectors live on a private registry, so several sessions in one
// process (tests, mostly) do not collide. The registry can be exposed over
// HTTP with Serve while a long capture runs.
package metrics
