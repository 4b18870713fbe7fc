// Package sinks implements concrete progress consumers: structured logging and
// Prometheus collectors that can be dumped to a node-exporter textfile at the
// end of a run.
package sinks
