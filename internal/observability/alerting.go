package observability

import (
	"fmt"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	MaxPendingSummaries int `yaml:"max_pending_summaries" json:"max_pending_summaries"`
	MaxBatchFailurePct  int `yaml:"max_batch_failure_pct" json:"max_batch_failure_pct"`
	MaxRejectionPct     int `yaml:"max_rejection_pct" json:"max_rejection_pct"`
	StaleReviewDays     int `yaml:"stale_review_days" json:"stale_review_days"`
	// MinDecisions is how many approve/reject decisions must exist before
	// the rejection rate is judged.
	MinDecisions int `yaml:"min_decisions" json:"min_decisions"`
}

// DefaultAlertThresholds returns the default alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxPendingSummaries: 25,
		MaxBatchFailurePct:  20,
		MaxRejectionPct:     30,
		StaleReviewDays:     3,
		MinDecisions:        5,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate reads events and checks all alert conditions, returning any triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	var alerts []Alert

	open, err := ae.openSummaries()
	if err != nil {
		return nil, fmt.Errorf("reading review queue: %w", err)
	}
	alerts = append(alerts, ae.checkReviewBacklog(open, now)...)
	alerts = append(alerts, ae.checkStaleReviews(open, now)...)

	batchAlerts, err := ae.checkBatchFailures(now)
	if err != nil {
		return nil, fmt.Errorf("checking batch failures: %w", err)
	}
	alerts = append(alerts, batchAlerts...)

	rejectionAlerts, err := ae.checkRejectionRate(now)
	if err != nil {
		return nil, fmt.Errorf("checking rejection rate: %w", err)
	}
	alerts = append(alerts, rejectionAlerts...)

	return alerts, nil
}

// openSummaries replays generated/approved/rejected events and returns the
// summaries still awaiting a decision, keyed by id, with their creation time.
func (ae *alertEngine) openSummaries() (map[int]time.Time, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}

	open := make(map[int]time.Time)
	for _, event := range events {
		id := intField(event.Data, "summary_id")
		if id == 0 {
			continue
		}
		switch event.Type {
		case "summary.generated":
			open[id] = event.Time
		case "summary.approved", "summary.rejected":
			delete(open, id)
		}
	}
	return open, nil
}

// checkReviewBacklog alerts when more summaries await review than allowed.
func (ae *alertEngine) checkReviewBacklog(open map[int]time.Time, now time.Time) []Alert {
	if len(open) <= ae.thresholds.MaxPendingSummaries {
		return nil
	}
	return []Alert{{
		ID:          "review-backlog",
		Condition:   "review_backlog_too_large",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d summaries await review, exceeding the maximum of %d", len(open), ae.thresholds.MaxPendingSummaries),
		TriggeredAt: now,
	}}
}

// checkStaleReviews alerts for each summary left undecided too long.
func (ae *alertEngine) checkStaleReviews(open map[int]time.Time, now time.Time) []Alert {
	if ae.thresholds.StaleReviewDays <= 0 {
		return nil
	}
	threshold := time.Duration(ae.thresholds.StaleReviewDays) * 24 * time.Hour
	var alerts []Alert
	for id, created := range open {
		if now.Sub(created) > threshold {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("stale-review-%d", id),
				Condition:   "review_stale",
				Severity:    SeverityLow,
				Message:     fmt.Sprintf("summary %d has awaited review for more than %d days", id, ae.thresholds.StaleReviewDays),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkBatchFailures looks at the most recent batch run.
func (ae *alertEngine) checkBatchFailures(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{Type: "batch.completed"})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	last := events[len(events)-1]
	attempted := intField(last.Data, "attempted")
	failed := intField(last.Data, "failed")
	if attempted == 0 {
		return nil, nil
	}
	pct := failed * 100 / attempted
	if pct <= ae.thresholds.MaxBatchFailurePct {
		return nil, nil
	}
	runID, _ := last.Data["run_id"].(string)
	return []Alert{{
		ID:          fmt.Sprintf("batch-failures-%s", runID),
		Condition:   "batch_failure_rate_high",
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("last batch failed %d of %d threads (%d%%), above the %d%% limit", failed, attempted, pct, ae.thresholds.MaxBatchFailurePct),
		TriggeredAt: now,
	}}, nil
}

// checkRejectionRate alerts when reviewers reject too many summaries.
func (ae *alertEngine) checkRejectionRate(now time.Time) ([]Alert, error) {
	approved, err := ae.eventLog.Read(EventFilter{Type: "summary.approved"})
	if err != nil {
		return nil, err
	}
	rejected, err := ae.eventLog.Read(EventFilter{Type: "summary.rejected"})
	if err != nil {
		return nil, err
	}

	decided := len(approved) + len(rejected)
	if decided == 0 || decided < ae.thresholds.MinDecisions {
		return nil, nil
	}
	pct := len(rejected) * 100 / decided
	if pct <= ae.thresholds.MaxRejectionPct {
		return nil, nil
	}
	return []Alert{{
		ID:          "rejection-rate",
		Condition:   "rejection_rate_high",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d%% of %d reviewed summaries were rejected, above the %d%% limit", pct, decided, ae.thresholds.MaxRejectionPct),
		TriggeredAt: now,
	}}, nil
}
