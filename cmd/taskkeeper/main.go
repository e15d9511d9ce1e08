package main

import (
	"fmt"
	"os"

	"github.com/jholhewres/taskkeeper/cmd/taskkeeper/commands"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := commands.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
