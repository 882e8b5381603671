// Package trace provides sinks for the structured events emitted while a
// workflow runs (core.Event): an in-memory Recorder used by the runner's
// debug mode, a LogSink writing events through a logging.Logger, a
// PrometheusSink exporting counters and latencies, and a RedisStreamSink
// appending events to a Redis stream for out-of-process consumers.
//
// Sinks are combined with Multi. Every sink is safe for concurrent use since
// parallel branches emit from several goroutines.
package trace
