package main

import "github.com/clawdesk/clawbench/cmd"

func main() {
	cmd.Execute()
}
