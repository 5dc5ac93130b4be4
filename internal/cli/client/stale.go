package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// StaleCmd creates the stale command.
func StaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stale <document-id>",
		Short: "Mark a document stale",
		Long:  "Removes a document's chunks from retrieval. Existing citations keep resolving.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStale(cmd, args[0])
		},
	}
	return cmd
}

func runStale(cmd *cobra.Command, documentID string) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	_, err = api.Post("/documents/"+url.PathEscape(documentID)+"/stale", nil)
	if err != nil {
		return err
	}

	fmt.Printf("Document %s marked stale\n", documentID)
	return nil
}
