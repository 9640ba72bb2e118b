package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ProgressFunc is called synchronously after every attempted item with the
// running completed count and the fixed total.
type ProgressFunc func(done, total int)

// ItemFailure pairs a work item with the error its operation returned.
type ItemFailure[T any] struct {
	Item T
	Err  error
}

// BatchReport is the outcome of one batch run.
type BatchReport[T any] struct {
	RunID      string
	Total      int
	Attempted  int
	Succeeded  int
	Failures   []ItemFailure[T]
	Cancelled  bool
	Stopped    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed returns the number of failed items.
func (r BatchReport[T]) Failed() int { return len(r.Failures) }

// FailedItems returns the failed items in the order they were attempted.
func (r BatchReport[T]) FailedItems() []T {
	out := make([]T, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Item)
	}
	return out
}

// BatchOptions tunes a batch run. The zero value runs every item, unpaced,
// without logging.
type BatchOptions struct {
	// StopOnError ends the run after the first failed item.
	StopOnError bool
	// Limiter paces submissions. Nil means no pacing.
	Limiter *rate.Limiter
	Logger  zerolog.Logger
	Events  EventLogger
	// Label names the batch in logs and events.
	Label string
}

// NewBatchLimiter returns a limiter allowing perSecond submissions, or nil
// when perSecond is not positive.
func NewBatchLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// RunBatch applies op to each item strictly in order. Item i+1 is not
// started until op has returned for item i. A failing item is recorded and
// the run moves on unless opts.StopOnError is set.
//
// An empty item list is a usage error and returns a zero report. Cancelling
// ctx stops the run before the next item; the partial report is returned
// with ErrCancelled.
func RunBatch[T any](ctx context.Context, items []T, op func(context.Context, T) error, onProgress ProgressFunc, opts BatchOptions) (BatchReport[T], error) {
	if len(items) == 0 {
		return BatchReport[T]{}, fmt.Errorf("%w: batch has no items", ErrUsage)
	}
	if op == nil {
		return BatchReport[T]{}, fmt.Errorf("%w: batch has no operation", ErrUsage)
	}

	log := opts.Logger.With().Str("component", "batch").Logger()
	report := BatchReport[T]{
		RunID:     uuid.NewString(),
		Total:     len(items),
		StartedAt: time.Now().UTC(),
	}

	for i, item := range items {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				report.Cancelled = true
				break
			}
		}

		err := op(ctx, item)
		report.Attempted++
		if err != nil {
			report.Failures = append(report.Failures, ItemFailure[T]{Item: item, Err: err})
			log.Debug().Err(err).Int("index", i).Str("run_id", report.RunID).Msg("batch item failed")
		} else {
			report.Succeeded++
			log.Debug().Int("index", i).Str("run_id", report.RunID).Msg("batch item succeeded")
		}

		if onProgress != nil {
			onProgress(report.Attempted, report.Total)
		}

		if err != nil && opts.StopOnError {
			report.Stopped = true
			break
		}
	}
	report.FinishedAt = time.Now().UTC()

	log.Info().
		Str("run_id", report.RunID).
		Str("label", opts.Label).
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed()).
		Bool("cancelled", report.Cancelled).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("batch finished")

	logEvent(opts.Events, "batch.completed", map[string]any{
		"run_id":      report.RunID,
		"label":       opts.Label,
		"total":       report.Total,
		"attempted":   report.Attempted,
		"succeeded":   report.Succeeded,
		"failed":      report.Failed(),
		"cancelled":   report.Cancelled,
		"duration_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	})

	if report.Cancelled {
		return report, fmt.Errorf("batch %s after %d of %d items: %w", report.RunID, report.Attempted, report.Total, errors.Join(ErrCancelled, ctx.Err()))
	}
	return report, nil
}
