package cli

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/thread-review/pkg/models"
)

// completionTimeout bounds the backend call made while completing.
const completionTimeout = 3 * time.Second

// completeThreadIDs lists thread ids with their subject as description.
func completeThreadIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Review == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx, cancel := context.WithTimeout(commandContext(cmd), completionTimeout)
	defer cancel()

	threads, err := Review.Threads(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, t := range threads {
		if strings.HasPrefix(t.ThreadID, toComplete) {
			ids = append(ids, t.ThreadID+"\t"+t.Subject)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeSummaryIDs returns a completion function listing summary ids in
// the given statuses, or the review queue when none are given.
func completeSummaryIDs(statuses ...models.SummaryStatus) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if Review == nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		ctx, cancel := context.WithTimeout(commandContext(cmd), completionTimeout)
		defer cancel()

		var summaries []models.Summary
		if len(statuses) == 0 {
			queue, err := Review.ReviewQueue(ctx)
			if err != nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			summaries = queue
		}
		for _, status := range statuses {
			list, err := Review.ListSummaries(ctx, status)
			if err != nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			summaries = append(summaries, list...)
		}

		var ids []string
		for i := range summaries {
			s := &summaries[i]
			id := strconv.FormatInt(s.ID, 10)
			if strings.HasPrefix(id, toComplete) {
				ids = append(ids, id+"\t"+string(s.Status)+": "+truncate(s.EffectiveContent().IssueSummary, 50))
			}
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeValues returns a completion function for a fixed value set.
func completeValues[T ~string](values ...T) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

func init() {
	threadsShowCmd.ValidArgsFunction = completeThreadIDs
	threadsSummarizeCmd.ValidArgsFunction = completeThreadIDs
	threadsDeleteCmd.ValidArgsFunction = completeThreadIDs

	summariesShowCmd.ValidArgsFunction = completeSummaryIDs(
		models.SummaryPending, models.SummaryEdited, models.SummaryApproved, models.SummaryRejected)
	summariesEditCmd.ValidArgsFunction = completeSummaryIDs()
	summariesApproveCmd.ValidArgsFunction = completeSummaryIDs()
	summariesRejectCmd.ValidArgsFunction = completeSummaryIDs()
	summariesExportCmd.ValidArgsFunction = completeSummaryIDs(models.SummaryApproved)
}
