package observability

import (
	"fmt"
	"time"
)

// Metrics holds review metrics derived from the event log.
type Metrics struct {
	ThreadsImported     int            `json:"threads_imported"`
	SummariesGenerated  int            `json:"summaries_generated"`
	GenerationFailures  int            `json:"generation_failures"`
	SummariesEdited     int            `json:"summaries_edited"`
	SummariesApproved   int            `json:"summaries_approved"`
	ApprovedAfterEdit   int            `json:"approved_after_edit"`
	SummariesRejected   int            `json:"summaries_rejected"`
	SummariesExported   int            `json:"summaries_exported"`
	BatchRuns           int            `json:"batch_runs"`
	BatchItems          int            `json:"batch_items"`
	BatchFailures       int            `json:"batch_failures"`
	GeneratedByPriority map[string]int `json:"generated_by_priority"`
	RejectionReasons    map[string]int `json:"rejection_reasons"`
	EventCount          int            `json:"event_count"`
	OldestEvent         *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent         *time.Time     `json:"newest_event,omitempty"`
}

// ApprovalRate is approved / (approved + rejected) as a percentage, or 0
// when nothing has been decided.
func (m *Metrics) ApprovalRate() float64 {
	decided := m.SummariesApproved + m.SummariesRejected
	if decided == 0 {
		return 0
	}
	return float64(m.SummariesApproved) / float64(decided) * 100
}

// EditRate is the share of approvals that followed a reviewer edit, as a
// percentage.
func (m *Metrics) EditRate() float64 {
	if m.SummariesApproved == 0 {
		return 0
	}
	return float64(m.ApprovedAfterEdit) / float64(m.SummariesApproved) * 100
}

// BatchFailureRate is the share of attempted batch items that failed, as a
// percentage.
func (m *Metrics) BatchFailureRate() float64 {
	if m.BatchItems == 0 {
		return 0
	}
	return float64(m.BatchFailures) / float64(m.BatchItems) * 100
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		GeneratedByPriority: make(map[string]int),
		RejectionReasons:    make(map[string]int),
	}

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "thread.imported":
			m.ThreadsImported += intField(event.Data, "imported")
		case "summary.generated":
			m.SummariesGenerated++
			if p, ok := event.Data["priority"].(string); ok && p != "" {
				m.GeneratedByPriority[p]++
			}
		case "summary.generate_failed":
			m.GenerationFailures++
		case "summary.edited":
			m.SummariesEdited++
		case "summary.approved":
			m.SummariesApproved++
			if edited, _ := event.Data["was_edited"].(bool); edited {
				m.ApprovedAfterEdit++
			}
		case "summary.rejected":
			m.SummariesRejected++
			if reason, ok := event.Data["reason"].(string); ok && reason != "" {
				m.RejectionReasons[reason]++
			}
		case "summary.exported":
			m.SummariesExported++
		case "batch.completed":
			m.BatchRuns++
			m.BatchItems += intField(event.Data, "attempted")
			m.BatchFailures += intField(event.Data, "failed")
		}
	}

	return m, nil
}

// intField reads a numeric event field. Values decoded from JSON arrive as
// float64; values written in-process may still be int.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
