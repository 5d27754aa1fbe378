// Package main provides the entry point for the resume authoring agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "author_agent",
	Short: "Resume authoring pipeline agent",
	Long:  "Orchestrates the resume authoring pipeline: job posting intake, evidence research, gap interview, blueprint, guided section review, quality scoring and export. Serves a REST API or runs headless.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
