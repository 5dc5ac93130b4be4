package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// AskRequest represents the answer API request.
type AskRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
	TokenBudget    int    `json:"token_budget,omitempty"`
	CostPreference string `json:"cost_preference,omitempty"`
}

// Citation represents one citation in an answer.
type Citation struct {
	SourceURI string `json:"source_uri"`
	ChunkID   string `json:"chunk_id"`
	Label     string `json:"label"`
}

// AskResponse represents the answer API response.
type AskResponse struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Provider  string     `json:"provider,omitempty"`
	Model     string     `json:"model,omitempty"`
	TokensIn  int        `json:"tokens_in"`
	TokensOut int        `json:"tokens_out"`
	State     string     `json:"state"`
	LatencyMs int64      `json:"latency_ms"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		conversationID string
		tokenBudget    int
		costPreference string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a grounded question",
		Long:  "Runs a question through retrieval and generation and prints the cited answer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAsk(cmd, args[0], conversationID, tokenBudget, costPreference, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation ID for usage attribution")
	cmd.Flags().IntVar(&tokenBudget, "budget", 0, "Context token budget (0 uses the server default)")
	cmd.Flags().StringVar(&costPreference, "prefer", "", "Routing preference: favor_cost or favor_quality")

	return cmd
}

func runAsk(cmd *cobra.Command, query, conversationID string, tokenBudget int, costPreference string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/answer", AskRequest{
		ConversationID: conversationID,
		Query:          query,
		TokenBudget:    tokenBudget,
		CostPreference: costPreference,
	})
	if err != nil {
		return err
	}

	var result AskResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if outputJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(result.Answer)
	if len(result.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range result.Citations {
			fmt.Printf("  %s\n", c.Label)
		}
	}
	if result.State != "completed" {
		fmt.Printf("\n(state: %s)\n", result.State)
	}
	return nil
}
