// Command qbctl reads and changes table records from the command line.
// Connection settings come from a config file and QB_ environment
// variables; see the config package.
package main

import (
	"errors"
	"os"

	"github.com/dan-strohschein/qbdriver/client"
)

// Exit codes.
const (
	exitFailure      = 1 // the service rejected a call
	exitCommandError = 2 // bad flags, files or settings
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		printError(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var usage *usageError
	var guard *client.ArgumentGuardError
	if errors.As(err, &usage) || errors.As(err, &guard) {
		return exitCommandError
	}
	return exitFailure
}
