package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundline/groundline/internal/cli"
	"github.com/groundline/groundline/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "groundlined",
		Short: "Groundline daemon",
		Long:  "Groundline daemon for running the grounded question-answering API server",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
