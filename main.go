package main

import "github.com/agentic-research/netmodel/cmd"

func main() {
	cmd.Execute()
}
