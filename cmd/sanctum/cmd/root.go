package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sanctum",
	Short: "Sanctum is a zero-knowledge encryption toolkit for crisis data",
	Long: `Client-side encryption and key lifecycle tooling for safety-critical data.
Complete documentation is available at https://github.com/sanctumkit/sanctum`,
	Version: Version,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
