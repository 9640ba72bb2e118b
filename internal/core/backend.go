package core

import (
	"context"
	"encoding/json"

	"github.com/valter-silva-au/thread-review/pkg/models"
)

// Backend is the review API the client drives. The integration package
// provides the HTTP implementation; tests use in-memory fakes.
type Backend interface {
	SummaryBackend

	Health(ctx context.Context) (*models.HealthStatus, error)
	Analytics(ctx context.Context) (*models.Analytics, error)
	ListThreads(ctx context.Context) ([]models.Thread, error)
	GetThread(ctx context.Context, threadID string) (*models.Thread, error)
	ImportThreads(ctx context.Context, payload *models.ImportPayload) (*models.ImportResult, error)
	SummarizeThread(ctx context.Context, threadID string) (*models.SummarizeResult, error)
	DeleteThread(ctx context.Context, threadID string) error
	ListSummaries(ctx context.Context, status models.SummaryStatus) ([]models.Summary, error)
	ExportSummary(ctx context.Context, id int64) (json.RawMessage, error)
}

// ArtifactWriter persists an export artifact and returns where it went.
type ArtifactWriter interface {
	Write(artifact models.ExportArtifact) (string, error)
}
