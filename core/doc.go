// Package core provides the foundational types shared by every part of
// agentflow. It defines:
//
//   - Node, the capability implemented by agent units and composites
//   - State, the shared key/value session state of one run
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - Event and Tracer, the structured tracing surface
//   - The error taxonomy (missing dependency, cancellation, aggregate failure, ...)
//
// Concrete nodes live in package agent, the retry policy in package retry and
// the runner in package runner. This package keeps those concerns out and only
// exposes the small interfaces they meet on.
package core
