package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	devLog   bool
)

var rootCmd = &cobra.Command{
	Use:   "gloomers",
	Short: "Distributed-systems workload nodes speaking line-delimited JSON",
	Long: `Nodes that read one JSON message per line on standard input and write replies
on standard output, for running under a test harness that owns the network.

The broadcast workload replicates a grow-only set of integers to every node in the
cluster by periodic anti-entropy gossip over the topology the harness installs.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev-log", false, "Human-readable console logs instead of JSON")
}
