package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/pr-monitor/internal/logging"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
	cfgFile   string
	ghToken   string
	logFormat string
	logOutput string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pilot",
		Short: "PR monitor — watches a pull request and drives it to merge",
		Long: `Pilot monitors a single pull request through CI, review, and merge,
surfacing a structured directive each time it needs a decision from its
LLM caller or a human.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(&logging.Config{Level: "info", Format: logFormat, Output: logOutput})
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&ghToken, "github-token", os.Getenv("GITHUB_TOKEN"), "GitHub token for merge/build REST calls")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "log destination: stdout, stderr, or a file path")

	rootCmd.AddCommand(
		newMonitorCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show pilot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pilot %s\n", version)
			if buildTime != "unknown" {
				fmt.Printf("Built: %s\n", buildTime)
			}
		},
	}
}
