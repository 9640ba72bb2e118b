package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/valter-silva-au/thread-review/pkg/models"
)

var errBackendDown = errors.New("backend unavailable")

// fakeBackend is an in-memory Backend that records every call.
type fakeBackend struct {
	mu        sync.Mutex
	threads   []models.Thread
	summaries map[int64]*models.Summary
	nextID    int64

	failSummarize map[string]bool
	failEdit      bool
	failApprove   bool
	failAnalytics bool

	calls   []string
	imports []*models.ImportPayload
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		summaries:     map[int64]*models.Summary{},
		nextID:        1,
		failSummarize: map[string]bool{},
	}
}

func (f *fakeBackend) record(call string) {
	f.calls = append(f.calls, call)
}

// callCount returns how many calls were made to method.
func (f *fakeBackend) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func sampleContent() models.SummaryContent {
	return models.SummaryContent{
		IssueSummary:     "Customer received a damaged blender.",
		NextSteps:        "Ship a replacement.",
		KeyActions:       []string{"Verify order", "Ship replacement"},
		Priority:         models.PriorityMedium,
		ResolutionStatus: models.ResolutionPending,
		Sentiment:        models.SentimentNegative,
		Tags:             []string{"damaged", "replacement"},
	}
}

// addSummary stores a summary in the given status and returns its id.
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
		OriginalSummary: sampleContent(),
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

func (f *fakeBackend) Health(_ context.Context) (*models.HealthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Health")
	return &models.HealthStatus{Status: "healthy", NLPMethod: "fake"}, nil
}

func (f *fakeBackend) Analytics(_ context.Context) (*models.Analytics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Analytics")
	if f.failAnalytics {
		return nil, errBackendDown
	}
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
	f.record("ListThreads")
	return append([]models.Thread{}, f.threads...), nil
}

func (f *fakeBackend) GetThread(_ context.Context, threadID string) (*models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetThread")
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
	f.record("ImportThreads")
	f.imports = append(f.imports, payload)
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
	f.record("SummarizeThread")
	if f.failSummarize[threadID] {
		return nil, fmt.Errorf("summarizing %s: %w", threadID, errBackendDown)
	}
	id := f.nextID
	f.nextID++
	content := sampleContent()
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
	f.record("DeleteThread")
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
	f.record("ListSummaries")
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
	f.record("GetSummary")
	s, ok := f.summaries[id]
	if !ok {
		return nil, fmt.Errorf("summary %d not found", id)
	}
	return s.Clone(), nil
}

func (f *fakeBackend) EditSummary(_ context.Context, id int64, content models.SummaryContent, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("EditSummary")
	if f.failEdit {
		return errBackendDown
	}
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
	f.record("ApproveSummary")
	if f.failApprove {
		return errBackendDown
	}
	s, ok := f.summaries[id]
	if !ok {
		return fmt.Errorf("summary %d not found", id)
	}
	s.Status = models.SummaryApproved
	s.ApprovedBy = &user
	return nil
}

func (f *fakeBackend) RejectSummary(_ context.Context, id int64, _ string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RejectSummary")
	s, ok := f.summaries[id]
	if !ok {
		return fmt.Errorf("summary %d not found", id)
	}
	s.Status = models.SummaryRejected
	return nil
}

func (f *fakeBackend) ExportSummary(_ context.Context, id int64) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ExportSummary")
	s, ok := f.summaries[id]
	if !ok {
		return nil, fmt.Errorf("summary %d not found", id)
	}
	return json.RawMessage(fmt.Sprintf(`{"summary_id":%d,"thread_id":%q}`, id, s.ThreadID)), nil
}

// fakeEventLogger collects logged events.
type fakeEventLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *fakeEventLogger) LogEvent(eventType string, _ map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, eventType)
	return nil
}

func (l *fakeEventLogger) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// fakeWriter records written artifacts.
type fakeWriter struct {
	written []models.ExportArtifact
}

func (w *fakeWriter) Write(a models.ExportArtifact) (string, error) {
	w.written = append(w.written, a)
	return fmt.Sprintf("exports/summary_%s_0.json", a.ThreadID), nil
}
