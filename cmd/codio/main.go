package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "codio",
	Short:         "Pause-to-code analysis for programming tutorial videos",
	Long:          "codio downloads programming tutorial videos, classifies sampled frames\nwith a vision-language model, and answers \"what code is on screen at\nthis timestamp\" queries over an HTTP API and MCP tools.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show codio version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codio version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(codeCmd)
	rootCmd.AddCommand(videosCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
