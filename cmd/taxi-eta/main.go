// Command taxi-eta runs the taxi trip duration model lifecycle and
// prediction service. It exposes three subcommands over a shared
// configuration and model-registry layer: serve (the HTTP API, the
// default when no subcommand is given), train (run bootstrap training
// once and exit), and scan (print the ranked registry contents and exit).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/richxcame/taxi-eta/internal/eta"
)

// exitConfigError marks an error as a configuration failure (§6/§7 exit
// code 2), distinct from a generic runtime failure (exit code 1).
type exitConfigError struct{ cause error }

func (e *exitConfigError) Error() string { return e.cause.Error() }
func (e *exitConfigError) Unwrap() error { return e.cause }

func main() {
	root := &cobra.Command{
		Use:   "taxi-eta",
		Short: "Taxi trip duration model lifecycle and prediction service",
	}

	serveCmd := newServeCommand()
	root.AddCommand(serveCmd)
	root.AddCommand(newTrainCommand())
	root.AddCommand(newScanCommand())

	// Running the binary with no subcommand serves, matching how the
	// teacher's single-binary service started unconditionally.
	root.RunE = serveCmd.RunE

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var cfgErr *exitConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	var noModel *eta.ErrNoModelAvailable
	if errors.As(err, &noModel) {
		return 3
	}
	return 1
}
