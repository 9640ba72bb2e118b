package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/thread-review/internal/core"
	"github.com/valter-silva-au/thread-review/internal/storage"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

var (
	summariesStatus string
	summariesJSON   bool

	editIssueSummary    string
	editNextSteps       string
	editKeyActions      []string
	editClearKeyActions bool
	editPriority        string
	editResolution      string
	editSentiment       string
	editTags            []string
	editClearTags       bool
	editApprove         bool

	rejectReason string

	exportDir    string
	exportFormat string
)

var summariesCmd = &cobra.Command{
	Use:     "summaries",
	Aliases: []string{"summary"},
	Short:   "Review, edit, approve, reject, and export summaries",
}

var summariesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List summaries (default: the review queue)",
	Long: `List summaries. Without --status this is the review queue: pending
summaries first, then edited ones.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		ctx := commandContext(cmd)

		var (
			summaries []models.Summary
			err       error
		)
		if summariesStatus != "" {
			summaries, err = Review.ListSummaries(ctx, models.SummaryStatus(summariesStatus))
		} else {
			summaries, err = Review.ReviewQueue(ctx)
		}
		if err != nil {
			return err
		}

		if summariesJSON {
			data, err := json.MarshalIndent(summaries, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting summaries as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(summaries) == 0 {
			fmt.Println("No summaries found.")
			return nil
		}
		fmt.Printf("%-6s %-14s %-9s %-8s %s\n", "ID", "THREAD", "STATUS", "PRIORITY", "ISSUE")
		for i := range summaries {
			s := &summaries[i]
			c := s.EffectiveContent()
			fmt.Printf("%-6d %-14s %-9s %-8s %s\n", s.ID, s.ThreadID, s.Status, c.Priority, truncate(c.IssueSummary, 60))
		}
		fmt.Printf("\n%d summary(ies)\n", len(summaries))
		return nil
	},
}

var summariesShowCmd = &cobra.Command{
	Use:   "show <summary-id>",
	Short: "Show a summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		id, err := parseSummaryID(args[0])
		if err != nil {
			return err
		}
		s, err := Review.Summary(commandContext(cmd), id)
		if err != nil {
			return err
		}
		printSummary(s)
		return nil
	},
}

var summariesEditCmd = &cobra.Command{
	Use:   "edit <summary-id>",
	Short: "Edit a pending or edited summary",
	Long: `Edit fields of a pending or edited summary. Only the fields given are
changed; everything else keeps its current value. With --approve the summary
is approved after the edit is saved, and only if the save succeeded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		id, err := parseSummaryID(args[0])
		if err != nil {
			return err
		}
		patch := buildPatch()
		if patch.IsEmpty() {
			return fmt.Errorf("%w: nothing to edit; pass at least one field flag", core.ErrUsage)
		}

		s, err := Review.SaveEdits(commandContext(cmd), id, patch, editApprove)
		if err != nil {
			return err
		}
		if editApprove {
			fmt.Printf("Summary %d saved and approved\n", s.ID)
		} else {
			fmt.Printf("Summary %d saved (%s)\n", s.ID, s.Status)
		}
		return nil
	},
}

var summariesApproveCmd = &cobra.Command{
	Use:   "approve <summary-id>",
	Short: "Approve a pending or edited summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		id, err := parseSummaryID(args[0])
		if err != nil {
			return err
		}
		s, err := Review.Approve(commandContext(cmd), id)
		if err != nil {
			return err
		}
		by := ""
		if s.ApprovedBy != nil {
			by = " by " + *s.ApprovedBy
		}
		fmt.Printf("Summary %d approved%s\n", s.ID, by)
		return nil
	},
}

var summariesRejectCmd = &cobra.Command{
	Use:   "reject <summary-id>",
	Short: "Reject a pending or edited summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		id, err := parseSummaryID(args[0])
		if err != nil {
			return err
		}
		s, err := Review.Reject(commandContext(cmd), id, rejectReason)
		if err != nil {
			return err
		}
		fmt.Printf("Summary %d rejected\n", s.ID)
		return nil
	},
}

var summariesExportCmd = &cobra.Command{
	Use:   "export <summary-id>",
	Short: "Export an approved summary to a file",
	Long: `Fetch the export payload of an approved summary and write it to
summary_<thread>_<millis>.json (or .yaml) in the export directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		id, err := parseSummaryID(args[0])
		if err != nil {
			return err
		}

		dir, format := ExportDir, ExportFormat
		if exportDir != "" {
			dir = exportDir
		}
		if exportFormat != "" {
			format = exportFormat
		}
		store, err := storage.NewExportStore(dir, storage.ExportFormat(format))
		if err != nil {
			return fmt.Errorf("%w: %s", core.ErrUsage, err)
		}

		path, err := Review.ExportWith(commandContext(cmd), id, store)
		if err != nil {
			return err
		}
		fmt.Printf("Summary %d exported to %s\n", id, path)
		return nil
	},
}

func buildPatch() models.SummaryPatch {
	var p models.SummaryPatch
	if editIssueSummary != "" {
		p.IssueSummary = &editIssueSummary
	}
	if editNextSteps != "" {
		p.NextSteps = &editNextSteps
	}
	switch {
	case editClearKeyActions:
		empty := []string{}
		p.KeyActions = &empty
	case len(editKeyActions) > 0:
		actions := append([]string(nil), editKeyActions...)
		p.KeyActions = &actions
	}
	if editPriority != "" {
		v := models.Priority(editPriority)
		p.Priority = &v
	}
	if editResolution != "" {
		v := models.ResolutionStatus(editResolution)
		p.ResolutionStatus = &v
	}
	if editSentiment != "" {
		v := models.Sentiment(editSentiment)
		p.Sentiment = &v
	}
	switch {
	case editClearTags:
		empty := []string{}
		p.Tags = &empty
	case len(editTags) > 0:
		tags := append([]string(nil), editTags...)
		p.Tags = &tags
	}
	return p
}

func parseSummaryID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid summary id %q", core.ErrUsage, s)
	}
	return id, nil
}

func printSummary(s *models.Summary) {
	fmt.Printf("Summary:  %d\n", s.ID)
	fmt.Printf("Thread:   %s\n", s.ThreadID)
	fmt.Printf("Status:   %s\n", s.Status)
	if s.SummaryType != "" {
		fmt.Printf("Type:     %s\n", s.SummaryType)
	}
	if s.CreatedAt != "" {
		fmt.Printf("Created:  %s\n", s.CreatedAt)
	}
	if s.ApprovedBy != nil {
		fmt.Printf("Approved: by %s", *s.ApprovedBy)
		if s.ApprovedAt != nil {
			fmt.Printf(" at %s", *s.ApprovedAt)
		}
		fmt.Println()
	}
	if s.CRMContext != nil {
		fmt.Printf("Order:    %s (%s)\n", s.CRMContext.OrderID, s.CRMContext.Product)
	}
	if s.EditedSummary != nil {
		fmt.Println("\nContent (edited by reviewer):")
	} else {
		fmt.Println("\nContent:")
	}
	printContent(s.EffectiveContent())
}

func printContent(c models.SummaryContent) {
	fmt.Printf("  %-12s %s\n", "Issue:", c.IssueSummary)
	fmt.Printf("  %-12s %s\n", "Next steps:", c.NextSteps)
	fmt.Printf("  %-12s %s\n", "Priority:", c.Priority)
	fmt.Printf("  %-12s %s\n", "Resolution:", c.ResolutionStatus)
	fmt.Printf("  %-12s %s\n", "Sentiment:", c.Sentiment)
	if len(c.Tags) > 0 {
		fmt.Printf("  %-12s %s\n", "Tags:", strings.Join(c.Tags, ", "))
	}
	if len(c.KeyActions) > 0 {
		fmt.Printf("  %s\n", "Key actions:")
		for _, a := range c.KeyActions {
			fmt.Printf("    - %s\n", a)
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	summariesListCmd.Flags().StringVar(&summariesStatus, "status", "", "Filter by status (pending, edited, approved, rejected)")
	summariesListCmd.Flags().BoolVar(&summariesJSON, "json", false, "Output summaries as JSON")

	f := summariesEditCmd.Flags()
	f.StringVar(&editIssueSummary, "issue-summary", "", "New issue summary")
	f.StringVar(&editNextSteps, "next-steps", "", "New next steps")
	f.StringSliceVar(&editKeyActions, "key-action", nil, "Key action (repeatable; replaces the list)")
	f.BoolVar(&editClearKeyActions, "clear-key-actions", false, "Remove all key actions")
	f.StringVar(&editPriority, "priority", "", "Priority (low, medium, high, urgent)")
	f.StringVar(&editResolution, "resolution-status", "", "Resolution status (pending, resolved, escalated)")
	f.StringVar(&editSentiment, "sentiment", "", "Sentiment (positive, neutral, negative, frustrated)")
	f.StringSliceVar(&editTags, "tag", nil, "Tag (repeatable or comma separated; replaces the list)")
	f.BoolVar(&editClearTags, "clear-tags", false, "Remove all tags")
	f.BoolVar(&editApprove, "approve", false, "Approve the summary after saving the edit")

	summariesRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Why the summary is rejected (required)")
	_ = summariesRejectCmd.MarkFlagRequired("reason")

	summariesExportCmd.Flags().StringVar(&exportDir, "dir", "", "Directory to write the export to (default from config)")
	summariesExportCmd.Flags().StringVar(&exportFormat, "format", "", "Export format: json or yaml (default from config)")

	_ = summariesListCmd.RegisterFlagCompletionFunc("status", completeValues(
		models.SummaryPending, models.SummaryEdited, models.SummaryApproved, models.SummaryRejected))
	_ = summariesEditCmd.RegisterFlagCompletionFunc("priority", completeValues(models.Priorities...))
	_ = summariesEditCmd.RegisterFlagCompletionFunc("resolution-status", completeValues(models.ResolutionStatuses...))
	_ = summariesEditCmd.RegisterFlagCompletionFunc("sentiment", completeValues(models.Sentiments...))
	_ = summariesExportCmd.RegisterFlagCompletionFunc("format", completeValues("json", "yaml"))

	summariesCmd.AddCommand(summariesListCmd, summariesShowCmd, summariesEditCmd,
		summariesApproveCmd, summariesRejectCmd, summariesExportCmd)
	rootCmd.AddCommand(summariesCmd)
}
