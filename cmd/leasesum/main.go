package main

import (
	"log"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "leasesum",
	Short: "Extract and summarize lease terms with configurable prompts",
	Long: `leasesum runs every prompt template against every lease document
through an extraction service, merges the extracted fields per lease and
writes per-lease and aggregate reports.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
