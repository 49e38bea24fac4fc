// Package sinks implements concrete sample consumers such as Prometheus,
// repository-backed storage, completion notices and structured logging. Each
// sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
