package cmd

import (
	"fmt"
	"io"
	"os"
)

// exit codes
const (
	exitOK           = 0
	exitUnitFailures = 1
	exitPrecondition = 2
)

var (
	// globals used to patch over calls to os.Exit() during test
	osExit = os.Exit

	// stdout and stderr, captured in tests
	outWriter io.Writer = os.Stdout
	errWriter io.Writer = os.Stderr

	// exitCode is set by commands which complete with a failure status, e.g. failed units
	exitCode = exitOK
)

func reportFatal(err error) int {
	_, _ = fmt.Fprintf(errWriter, "pisi: %v\n", err)
	finish()
	return exitPrecondition
}
