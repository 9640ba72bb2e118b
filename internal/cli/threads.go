package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/thread-review/pkg/models"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List, inspect, summarize, and delete threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		threads, err := Review.Threads(commandContext(cmd))
		if err != nil {
			return err
		}
		if len(threads) == 0 {
			fmt.Println("No threads found. Import some with 'trv import <file>'.")
			return nil
		}

		fmt.Printf("%-14s %-10s %-5s %s\n", "THREAD", "FROM", "MSGS", "SUBJECT")
		for _, t := range threads {
			fmt.Printf("%-14s %-10s %-5d %s\n", t.ThreadID, t.InitiatedBy, len(t.Messages), t.Subject)
		}
		fmt.Printf("\n%d thread(s)\n", len(threads))
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show a thread and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		t, err := Review.Thread(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		printThread(t)
		return nil
	},
}

var threadsSummarizeCmd = &cobra.Command{
	Use:   "summarize <thread-id>",
	Short: "Generate a summary for one thread",
	Long: `Generate a summary for one thread. A thread that already has a summary
awaiting review is refused; approve or reject that one first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		res, err := Review.SummarizeThread(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Summary %d generated for thread %s\n\n", res.SummaryID, args[0])
		printContent(res.Summary)
		return nil
	},
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete a thread from the backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		if err := Review.DeleteThread(commandContext(cmd), args[0]); err != nil {
			return err
		}
		fmt.Printf("Thread %s deleted\n", args[0])
		return nil
	},
}

func printThread(t *models.Thread) {
	fmt.Printf("Thread:   %s\n", t.ThreadID)
	fmt.Printf("Subject:  %s\n", t.Subject)
	if t.Topic != "" {
		fmt.Printf("Topic:    %s\n", t.Topic)
	}
	fmt.Printf("Opened by: %s\n", t.InitiatedBy)
	if t.OrderID != "" {
		fmt.Printf("Order:    %s (%s)\n", t.OrderID, t.Product)
	}
	for _, m := range t.Messages {
		fmt.Printf("\n--- %s", m.Sender)
		if m.Timestamp != "" {
			fmt.Printf(" at %s", m.Timestamp)
		}
		fmt.Printf(" ---\n%s\n", strings.TrimSpace(m.Body))
	}
}

func init() {
	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsSummarizeCmd, threadsDeleteCmd)
	rootCmd.AddCommand(threadsCmd)
}
