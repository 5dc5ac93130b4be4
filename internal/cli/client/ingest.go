package client

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// ChunkPayload is one chunk in an upsert request.
type ChunkPayload struct {
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
}

// IngestRequest represents the chunk upsert API request.
type IngestRequest struct {
	DocumentID string         `json:"document_id"`
	SourceURI  string         `json:"source_uri"`
	SourceType string         `json:"source_type,omitempty"`
	Chunks     []ChunkPayload `json:"chunks"`
}

// IngestResponse represents the chunk upsert API response.
type IngestResponse struct {
	ChunkIDs []string `json:"chunk_ids"`
	Created  int      `json:"created"`
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var (
		documentID string
		sourceURI  string
		sourceType string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a document",
		Long:  "Splits a text file into paragraph chunks and upserts them. Re-running with unchanged content is a no-op.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runIngest(cmd, args[0], documentID, sourceURI, sourceType, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&documentID, "document", "d", "", "Document ID (defaults to the file name)")
	cmd.Flags().StringVarP(&sourceURI, "source", "s", "", "Source URI recorded in citations (defaults to the file path)")
	cmd.Flags().StringVarP(&sourceType, "type", "t", "", "Source type: page, pdf, product or api (defaults to page)")
	return cmd
}

func runIngest(cmd *cobra.Command, path, documentID, sourceURI, sourceType string, outputJSON bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if documentID == "" {
		documentID = path
	}
	if sourceURI == "" {
		sourceURI = "file://" + path
	}

	chunks := splitParagraphs(string(content))
	if len(chunks) == 0 {
		return fmt.Errorf("%s contains no text", path)
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/chunks", IngestRequest{
		DocumentID: documentID,
		SourceURI:  sourceURI,
		SourceType: sourceType,
		Chunks:     chunks,
	})
	if err != nil {
		return err
	}

	var result IngestResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Ingested %d chunks (%d new) from %s\n", len(result.ChunkIDs), result.Created, path)
	return nil
}

// splitParagraphs chunks text on blank lines. Good enough for plain docs;
// richer pipelines chunk upstream and call the API directly.
func splitParagraphs(text string) []ChunkPayload {
	var chunks []ChunkPayload
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		chunks = append(chunks, ChunkPayload{Ordinal: len(chunks), Text: para})
	}
	return chunks
}
