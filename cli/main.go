package main

import "github.com/Prashant-S29/wosh-keycore/cli/cmd"

func main() {
	cmd.Execute()
}
