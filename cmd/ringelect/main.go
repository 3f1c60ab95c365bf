package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK          = 0
	exitConfig      = 1
	exitTransport   = 2
	exitInterrupted = 130
)

var configPath string

// exitError carries the process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "ringelect",
		Short:         "ringelect - ring leader election over UDP",
		Long:          `ringelect elects the participant with the largest identifier on a unidirectional ring of processes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitConfig)
	}
	os.Exit(exitOK)
}
