package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/thread-review/pkg/models"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display review metrics from the local event log",
	Long: `Display aggregated metrics derived from the local event log.

Metrics include imports, summaries generated and failed, reviewer edits,
approvals and rejections (with reasons), exports, and batch run outcomes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log may be disabled)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		// Table format.
		fmt.Printf("Review metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Printf("  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Printf("  %-24s %d\n", "Threads imported:", metrics.ThreadsImported)
		fmt.Printf("  %-24s %d\n", "Summaries generated:", metrics.SummariesGenerated)
		fmt.Printf("  %-24s %d\n", "Generation failures:", metrics.GenerationFailures)
		fmt.Printf("  %-24s %d\n", "Summaries edited:", metrics.SummariesEdited)
		fmt.Printf("  %-24s %d\n", "Summaries approved:", metrics.SummariesApproved)
		fmt.Printf("  %-24s %d\n", "Summaries rejected:", metrics.SummariesRejected)
		fmt.Printf("  %-24s %d\n", "Summaries exported:", metrics.SummariesExported)
		fmt.Printf("  %-24s %.1f%%\n", "Approval rate:", metrics.ApprovalRate())
		fmt.Printf("  %-24s %.1f%%\n", "Approved after edit:", metrics.EditRate())
		if metrics.BatchRuns > 0 {
			fmt.Printf("  %-24s %d (%.1f%% of threads failed)\n", "Batch runs:", metrics.BatchRuns, metrics.BatchFailureRate())
		}

		if len(metrics.GeneratedByPriority) > 0 {
			fmt.Println("\n  Generated by priority:")
			for _, p := range models.Priorities {
				if count := metrics.GeneratedByPriority[string(p)]; count > 0 {
					fmt.Printf("    %-20s %d\n", string(p)+":", count)
				}
			}
		}

		if len(metrics.RejectionReasons) > 0 {
			fmt.Println("\n  Rejection reasons:")
			reasons := make([]string, 0, len(metrics.RejectionReasons))
			for reason := range metrics.RejectionReasons {
				reasons = append(reasons, reason)
			}
			sort.Strings(reasons)
			for _, reason := range reasons {
				fmt.Printf("    %-40s %d\n", truncate(reason, 38)+":", metrics.RejectionReasons[reason])
			}
		}

		if metrics.OldestEvent != nil {
			fmt.Printf("\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Printf("  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
