// Package progress defines the events a pipeline run emits as it moves
// through its acquisition tiers, and a Recorder that fans each event out to
// pluggable sinks such as structured logs or Prometheus collectors.
package progress
