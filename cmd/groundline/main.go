package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundline/groundline/internal/cli"
	"github.com/groundline/groundline/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "groundline",
		Short: "Groundline CLI - Grounded question answering over your content",
		Long: `Groundline CLI provides commands to ingest content and ask grounded questions.

Environment variables:
  GROUNDLINE_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.StaleCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
