package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    int
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "ringctl",
		Short: "ringctl - inspect a running ringelect participant",
		Long:  `ringctl queries the status service of a ringelect participant.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "localhost:9100", "Status service address")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 10, "Request timeout in seconds")

	// Add subcommands
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(leaderCmd())
	rootCmd.AddCommand(outcomesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
