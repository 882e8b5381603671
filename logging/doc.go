// Package logging provides a minimal logging interface and adapters for agentflow.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runner, agents and tools use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(root, func(o *runner.Options) { o.Logger = logger })
//
// Messages are dotted event names ("agent.run.start") followed by key/value pairs.
package logging
