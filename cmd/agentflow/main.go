// Command agentflow runs declarative agent pipelines from a YAML file.
package main

func main() {
	Execute()
}
