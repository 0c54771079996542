/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// agentctl is the Breakpoint Interceptor's process entry. spec.md §1
// keeps "the process-wide agent bootstrap (argument parsing, isolate
// startup)" out of the core's scope, but a core with no caller cannot
// be exercised -- this binary is that caller.
//
// Grounded on oriys-nova's cmd/nova/main.go: a root cobra.Command with
// persistent flags for config location, subcommands added in main.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentctl",
		Short: "Breakpoint Interceptor agent control",
		Long:  "Installs and replays the breakpoint interceptor agent against a synthetic host runtime.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to an agent config YAML file (optional)")

	rootCmd.AddCommand(installCmd(), replayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
