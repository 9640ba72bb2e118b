package cli

import (
	"github.com/valter-silva-au/thread-review/internal/core"
	"github.com/valter-silva-au/thread-review/internal/observability"
)

// Review services, set during app initialization in app.go.
var (
	Review *core.ReviewOrchestrator

	// ExportDir and ExportFormat are the configured export destination;
	// `summaries export` flags override them per call.
	ExportDir    string
	ExportFormat string

	// BatchStopOnError and BatchRate are the configured batch policy;
	// `batch` flags override them per run.
	BatchStopOnError bool
	BatchRate        float64
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

func requireReview() error {
	if Review == nil {
		return errNotInitialized
	}
	return nil
}
