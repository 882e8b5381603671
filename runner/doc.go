// Package runner executes a workflow tree.
//
// A Runner owns one root node. Every Run validates the topology, seeds a
// fresh session state with the user input, derives a cancellable scope with
// a new run id and executes the root. Runs are independent; the Runner
// itself is safe for concurrent use and can cancel any in-flight run by id.
//
// In debug mode the full trace of the run (node enter/exit with inputs,
// outputs and timing, retries, tool calls, state writes and loop
// transitions) is returned with the Result.
package runner
