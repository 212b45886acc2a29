package main

import (
	"fmt"
	"os"

	"vidgrab/internal/config"
	"vidgrab/internal/debug"
)

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}

	e := defaultEnv()
	err := newRootCommand(e).Execute()
	debug.Close()
	if err != nil {
		os.Exit(reportError(e.stderr, err))
	}
}
