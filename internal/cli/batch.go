package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/thread-review/internal/core"
)

var (
	batchStopOnError bool
	batchRate        float64
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Summarize every thread without a summary awaiting review",
	Long: `Summarize every listed thread, one at a time, skipping threads that
already have a pending or edited summary.

A failing thread is reported and the run continues unless --stop-on-error
is set. Press Ctrl-C to stop after the thread in flight.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}

		stop := BatchStopOnError
		if cmd.Flags().Changed("stop-on-error") {
			stop = batchStopOnError
		}
		perSecond := BatchRate
		if cmd.Flags().Changed("rate") {
			perSecond = batchRate
		}
		if perSecond < 0 {
			return fmt.Errorf("%w: --rate must not be negative", core.ErrUsage)
		}
		Review.SetBatchPolicy(stop, core.NewBatchLimiter(perSecond))

		ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer cancel()

		errOut := cmd.ErrOrStderr()
		report, err := Review.ProcessAllThreads(ctx, func(done, total int) {
			_, _ = fmt.Fprintf(errOut, "\r%s", progressLine(done, total, 30))
			if done == total {
				_, _ = fmt.Fprintln(errOut)
			}
		})
		if report.Attempted == 0 && err != nil {
			return err
		}

		if report.Cancelled {
			_, _ = fmt.Fprintln(errOut)
		}
		printBatchReport(report)
		if err != nil && !errors.Is(err, core.ErrCancelled) {
			return err
		}
		if report.Failed() > 0 {
			return fmt.Errorf("%d of %d threads failed", report.Failed(), report.Attempted)
		}
		return nil
	},
}

// progressLine renders done/total as a fixed-width text bar.
func progressLine(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	return fmt.Sprintf("[%s%s] %d/%d", strings.Repeat("#", filled), strings.Repeat(".", width-filled), done, total)
}

func printBatchReport(report core.BatchReport[string]) {
	fmt.Printf("Batch %s\n", report.RunID)
	fmt.Printf("  %-12s %d\n", "Threads:", report.Total)
	fmt.Printf("  %-12s %d\n", "Attempted:", report.Attempted)
	fmt.Printf("  %-12s %d\n", "Succeeded:", report.Succeeded)
	fmt.Printf("  %-12s %d\n", "Failed:", report.Failed())
	for _, f := range report.Failures {
		fmt.Printf("    %s: %s\n", f.Item, f.Err)
	}
	switch {
	case report.Cancelled:
		fmt.Println("  Run cancelled before all threads were attempted.")
	case report.Stopped:
		fmt.Println("  Run stopped at the first failure.")
	}
	if n, ok := Review.Notification(); ok {
		fmt.Printf("\n%s\n", n.Message)
	}
}

func init() {
	batchCmd.Flags().BoolVar(&batchStopOnError, "stop-on-error", false, "Stop the run at the first failed thread")
	batchCmd.Flags().Float64Var(&batchRate, "rate", 0, "Maximum summarize requests per second (0 = unlimited)")
	rootCmd.AddCommand(batchCmd)
}
