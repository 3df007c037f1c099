package main

import (
	"os"

	"github.com/traceway-systems/traceway-edge/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
