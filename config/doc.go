// Package config decodes agentflow YAML files.
//
// A minimal file declares a model and a pipeline:
//
//	model:
//	  provider: gemini
//	  name: gemini-2.0-flash
//	  api_key_env: GEMINI_API_KEY
//	pipeline:
//	  name: story
//	  type: sequential
//	  children:
//	    - name: writer
//	      type: agent
//	      instruction: "Write a short story about {topic}."
//	      output_key: current_story
//
// Build turns the pipeline into agent nodes ready for the runner.
package config
