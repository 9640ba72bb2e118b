package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var analyticsJSON bool

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show backend thread and summary counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		a, err := Review.Analytics(commandContext(cmd))
		if err != nil {
			return err
		}

		if analyticsJSON {
			data, err := json.MarshalIndent(a, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting analytics as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("  %-20s %d\n", "Threads:", a.TotalThreads)
		fmt.Printf("  %-20s %d\n", "Summaries:", a.TotalSummaries)
		fmt.Printf("  %-20s %d\n", "Pending review:", a.PendingSummaries)
		fmt.Printf("  %-20s %d\n", "Approved:", a.ApprovedSummaries)
		fmt.Printf("  %-20s %.2f%%\n", "Approval rate:", a.ApprovalRate)
		return nil
	},
}

func init() {
	analyticsCmd.Flags().BoolVar(&analyticsJSON, "json", false, "Output analytics as JSON")
	rootCmd.AddCommand(analyticsCmd)
}
