// Package agent provides the executable nodes of a workflow.
//
// A workflow is a tree: ModelAgent leaves drive a language model and write
// their answer under an output key; SequentialAgent, ParallelAgent and
// LoopAgent compose children. Nodes communicate only through the session
// state (core.State) passed to Execute.
//
//	writer := agent.MustModelAgent("writer", llm, func(o *agent.ModelAgentOptions) {
//		o.Instruction = agent.NewInstructionFromText("Write a short story about {topic}.")
//		o.OutputKey = "story"
//	})
//
//	refine := agent.NewLoopAgent("refine", []core.Node{critic, refiner},
//		agent.WithMaxIterations(3))
//
//	root := agent.NewSequentialAgent("pipeline", writer, refine)
//
// Run trees through the runner package, which validates the topology, seeds
// the state and collects the trace.
package agent
