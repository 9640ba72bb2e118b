package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/valter-silva-au/thread-review/internal/core"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

var errBackendDown = errors.New("backend unavailable")

// fakeBackend is an in-memory core.Backend.
type fakeBackend struct {
	mu        sync.Mutex
	threads   []models.Thread
	summaries map[int64]*models.Summary
	nextID    int64

	failSummarize map[string]bool
	failList      bool
	rejectReasons map[int64]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		summaries:     map[int64]*models.Summary{},
		nextID:        1,
		failSummarize: map[string]bool{},
		rejectReasons: map[int64]string{},
	}
}

func testContent() models.SummaryContent {
	return models.SummaryContent{
		IssueSummary:     "Customer received a damaged blender.",
		NextSteps:        "Ship a replacement.",
		KeyActions:       []string{"Verify order", "Ship replacement"},
		Priority:         models.PriorityMedium,
		ResolutionStatus: models.ResolutionPending,
		Sentiment:        models.SentimentNegative,
		Tags:             []string{"damaged"},
	}
}

func (f *fakeBackend) addThread(id, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads = append(f.threads, models.Thread{
		ThreadID:    id,
		Subject:     subject,
		InitiatedBy: models.RoleCustomer,
		OrderID:     "ORD-" + id,
		Product:     "Blender",
		Messages: []models.Message{
			{ID: "1", Sender: models.RoleCustomer, Timestamp: "2025-03-01T10:00:00Z", Body: "My blender arrived broken."},
			{ID: "2", Sender: models.RoleCompany, Timestamp: "2025-03-01T11:00:00Z", Body: "Sorry to hear that."},
		},
	})
}

func (f *fakeBackend) addSummary(threadID string, status models.SummaryStatus) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.summaries[id] = &models.Summary{
		ID:              id,
		ThreadID:        threadID,
		SummaryType:     "general",
		Status:          status,
		OriginalSummary: testContent(),
		CRMContext:      &models.CRMContext{OrderID: "ORD-" + threadID, Product: "Blender"},
	}
	return id
}

func (f *fakeBackend) stored(id int64) *models.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return nil
	}
	return s.Clone()
}

func (f *fakeBackend) threadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.threads)
}

func (f *fakeBackend) Health(_ context.Context) (*models.HealthStatus, error) {
	return &models.HealthStatus{Status: "healthy", NLPMethod: "fake-nlp", Timestamp: "2025-03-10T12:00:00Z"}, nil
}

func (f *fakeBackend) Analytics(_ context.Context) (*models.Analytics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &models.Analytics{TotalThreads: len(f.threads), TotalSummaries: len(f.summaries)}
	for _, s := range f.summaries {
		switch s.Status {
		case models.SummaryPending:
			a.PendingSummaries++
		case models.SummaryApproved:
			a.ApprovedSummaries++
		}
	}
	if a.TotalSummaries > 0 {
		a.ApprovalRate = float64(a.ApprovedSummaries) / float64(a.TotalSummaries) * 100
	}
	return a, nil
}

func (f *fakeBackend) ListThreads(_ context.Context) ([]models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errBackendDown
	}
	return append([]models.Thread{}, f.threads...), nil
}

func (f *fakeBackend) GetThread(_ context.Context, threadID string) (*models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.threads {
		if t.ThreadID == threadID {
			out := t
			return &out, nil
		}
	}
	return nil, fmt.Errorf("thread %s not found", threadID)
}

func (f *fakeBackend) ImportThreads(_ context.Context, payload *models.ImportPayload) (*models.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	imported := 0
	for _, raw := range payload.Threads {
		var t models.Thread
		if err := json.Unmarshal(raw, &t); err != nil || t.ThreadID == "" {
			continue
		}
		f.threads = append(f.threads, t)
		imported++
	}
	return &models.ImportResult{Imported: imported, Total: len(payload.Threads)}, nil
}

func (f *fakeBackend) SummarizeThread(_ context.Context, threadID string) (*models.SummarizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSummarize[threadID] {
		return nil, errBackendDown
	}
	id := f.nextID
	f.nextID++
	content := testContent()
	f.summaries[id] = &models.Summary{
		ID:              id,
		ThreadID:        threadID,
		SummaryType:     "general",
		Status:          models.SummaryPending,
		OriginalSummary: content,
	}
	return &models.SummarizeResult{SummaryID: id, Summary: content}, nil
}

func (f *fakeBackend) DeleteThread(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.threads {
		if t.ThreadID == threadID {
			f.threads = append(f.threads[:i], f.threads[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("thread %s not found", threadID)
}

func (f *fakeBackend) ListSummaries(_ context.Context, status models.SummaryStatus) ([]models.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errBackendDown
	}
	var out []models.Summary
	for _, s := range f.summaries {
		if s.Status == status {
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) GetSummary(_ context.Context, id int64) (*models.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return nil, fmt.Errorf("summary %d not found", id)
	}
	return s.Clone(), nil
}

func (f *fakeBackend) EditSummary(_ context.Context, id int64, content models.SummaryContent, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return fmt.Errorf("summary %d not found", id)
	}
	c := content.Clone()
	s.EditedSummary = &c
	s.Status = models.SummaryEdited
	return nil
}

func (f *fakeBackend) ApproveSummary(_ context.Context, id int64, user string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return fmt.Errorf("summary %d not found", id)
	}
	s.Status = models.SummaryApproved
	s.ApprovedBy = &user
	return nil
}

func (f *fakeBackend) RejectSummary(_ context.Context, id int64, _, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return fmt.Errorf("summary %d not found", id)
	}
	s.Status = models.SummaryRejected
	f.rejectReasons[id] = reason
	return nil
}

func (f *fakeBackend) ExportSummary(_ context.Context, id int64) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return nil, fmt.Errorf("summary %d not found", id)
	}
	return json.RawMessage(fmt.Sprintf(`{"summary_id":%d,"thread_id":%q}`, id, s.ThreadID)), nil
}

// memWriter records export artifacts in memory.
type memWriter struct {
	written []models.ExportArtifact
}

func (w *memWriter) Write(a models.ExportArtifact) (string, error) {
	w.written = append(w.written, a)
	return fmt.Sprintf("mem/summary_%s.json", a.ThreadID), nil
}

// newTestReview installs a review orchestrator over a fresh fake backend
// as the package-level Review and restores the previous one on cleanup.
func newTestReview(t *testing.T) (*fakeBackend, *memWriter) {
	t.Helper()
	backend := newFakeBackend()
	writer := &memWriter{}
	machine := core.NewSummaryStateMachine(backend, "tester", nil, zerolog.Nop())
	orch := core.NewReviewOrchestrator(core.OrchestratorOptions{
		Backend: backend,
		Machine: machine,
		Writer:  writer,
		Logger:  zerolog.Nop(),
	})

	orig := Review
	Review = orch
	t.Cleanup(func() { Review = orig })
	return backend, writer
}

// captureStdout captures stdout output during fn execution.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = origStdout

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading pipe: %v", err)
	}
	return string(out)
}
