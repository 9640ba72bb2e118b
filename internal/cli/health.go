package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the summarization backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		h, err := Review.Health(commandContext(cmd))
		if err != nil {
			return err
		}
		fmt.Printf("Backend status: %s\n", h.Status)
		if h.NLPMethod != "" {
			fmt.Printf("Summarizer:     %s\n", h.NLPMethod)
		}
		if h.Timestamp != "" {
			fmt.Printf("Server time:    %s\n", h.Timestamp)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
