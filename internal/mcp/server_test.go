package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/thread-review/internal/observability"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

// --- Fake implementations ---

var errNotFound = errors.New("not found")

type fakeReviewService struct {
	threads   []models.Thread
	summaries map[int64]*models.Summary
	nextID    int64
	reviewer  string
}

func newFakeReviewService() *fakeReviewService {
	return &fakeReviewService{
		threads: []models.Thread{
			{
				ThreadID:    "THR-1001",
				Topic:       "Damaged product",
				Subject:     "Mixer arrived cracked",
				InitiatedBy: models.RoleCustomer,
				OrderID:     "ORD-55",
				Product:     "Stand Mixer",
				Messages: []models.Message{
					{ID: "1", Sender: models.RoleCustomer, Body: "The bowl is cracked."},
					{ID: "2", Sender: models.RoleCompany, Body: "Sorry to hear that."},
				},
			},
			{ThreadID: "THR-1002", Topic: "Refund", Subject: "Where is my refund?", InitiatedBy: models.RoleCustomer},
		},
		summaries: map[int64]*models.Summary{
			1: {
				ID:       1,
				ThreadID: "THR-1001",
				Status:   models.SummaryPending,
				OriginalSummary: models.SummaryContent{
					IssueSummary: "Customer received a cracked mixer bowl.",
					Priority:     models.PriorityMedium,
					Tags:         []string{"damaged"},
				},
				CRMContext: &models.CRMContext{OrderID: "ORD-55", Product: "Stand Mixer"},
			},
			2: {ID: 2, ThreadID: "THR-0999", Status: models.SummaryApproved},
		},
		nextID:   3,
		reviewer: "CE Associate",
	}
}

func (f *fakeReviewService) Threads(_ context.Context) ([]models.Thread, error) {
	return f.threads, nil
}

func (f *fakeReviewService) Thread(_ context.Context, threadID string) (*models.Thread, error) {
	for i := range f.threads {
		if f.threads[i].ThreadID == threadID {
			return &f.threads[i], nil
		}
	}
	return nil, fmt.Errorf("thread %s: %w", threadID, errNotFound)
}

func (f *fakeReviewService) ReviewQueue(_ context.Context) ([]models.Summary, error) {
	var out []models.Summary
	for _, status := range []models.SummaryStatus{models.SummaryPending, models.SummaryEdited} {
		for id := int64(1); id < f.nextID; id++ {
			if s, ok := f.summaries[id]; ok && s.Status == status {
				out = append(out, *s.Clone())
			}
		}
	}
	return out, nil
}

func (f *fakeReviewService) ListSummaries(_ context.Context, status models.SummaryStatus) ([]models.Summary, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown summary status %q", status)
	}
	var out []models.Summary
	for id := int64(1); id < f.nextID; id++ {
		if s, ok := f.summaries[id]; ok && s.Status == status {
			out = append(out, *s.Clone())
		}
	}
	return out, nil
}

func (f *fakeReviewService) Summary(_ context.Context, id int64) (*models.Summary, error) {
	s, ok := f.summaries[id]
	if !ok {
		return nil, fmt.Errorf("summary %d: %w", id, errNotFound)
	}
	return s.Clone(), nil
}

func (f *fakeReviewService) SummarizeThread(ctx context.Context, threadID string) (*models.SummarizeResult, error) {
	if _, err := f.Thread(ctx, threadID); err != nil {
		return nil, err
	}
	content := models.SummaryContent{IssueSummary: "Generated for " + threadID, Priority: models.PriorityLow}
	id := f.nextID
	f.nextID++
	f.summaries[id] = &models.Summary{ID: id, ThreadID: threadID, Status: models.SummaryPending, OriginalSummary: content}
	return &models.SummarizeResult{SummaryID: id, Summary: content}, nil
}

func (f *fakeReviewService) decide(id int64, to models.SummaryStatus) (*models.Summary, error) {
	s, ok := f.summaries[id]
	if !ok {
		return nil, fmt.Errorf("summary %d: %w", id, errNotFound)
	}
	if s.Status.IsTerminal() {
		return nil, fmt.Errorf("summary %d is %s", id, s.Status)
	}
	s.Status = to
	return s.Clone(), nil
}

func (f *fakeReviewService) SaveEdits(_ context.Context, id int64, patch models.SummaryPatch, approve bool) (*models.Summary, error) {
	s, ok := f.summaries[id]
	if !ok {
		return nil, fmt.Errorf("summary %d: %w", id, errNotFound)
	}
	if s.Status.IsTerminal() {
		return nil, fmt.Errorf("summary %d is %s", id, s.Status)
	}
	edited := s.EffectiveContent()
	if patch.IssueSummary != nil {
		edited.IssueSummary = *patch.IssueSummary
	}
	if patch.Priority != nil {
		edited.Priority = *patch.Priority
	}
	s.EditedSummary = &edited
	s.Status = models.SummaryEdited
	if approve {
		s.Status = models.SummaryApproved
		s.ApprovedBy = &f.reviewer
	}
	return s.Clone(), nil
}

func (f *fakeReviewService) Approve(_ context.Context, id int64) (*models.Summary, error) {
	s, err := f.decide(id, models.SummaryApproved)
	if err == nil {
		s.ApprovedBy = &f.reviewer
	}
	return s, err
}

func (f *fakeReviewService) Reject(_ context.Context, id int64, reason string) (*models.Summary, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errors.New("a rejection reason is required")
	}
	return f.decide(id, models.SummaryRejected)
}

func (f *fakeReviewService) Analytics(_ context.Context) (*models.Analytics, error) {
	return &models.Analytics{TotalThreads: 2, TotalSummaries: 2, PendingSummaries: 1, ApprovedSummaries: 1, ApprovalRate: 50}, nil
}

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
}

func (f *fakeMetricsCalculator) Calculate(_ time.Time) (*observability.Metrics, error) {
	return f.metrics, nil
}

type fakeAlertEngine struct {
	alerts []observability.Alert
}

func (f *fakeAlertEngine) Evaluate() ([]observability.Alert, error) {
	return f.alerts, nil
}

// --- Test helpers ---

// callTool connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	result := callToolAllowError(t, srv, toolName, args)
	if result == nil {
		t.Fatalf("call tool %s: protocol error", toolName)
	}
	return result
}

// callToolAllowError is like callTool but returns nil instead of failing when
// the call is rejected at the protocol level (e.g. schema validation).
func callToolAllowError(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return nil
	}
	return result
}

// decode reads a tool's structured output, falling back to its text content.
func decode(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()

	if result.StructuredContent != nil {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			t.Fatalf("marshalling structured content: %v", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshalling structured content: %v", err)
		}
		return
	}
	text := extractText(result)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("unmarshalling tool output: %v (text was: %s)", err, text)
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Tests ---

func TestListThreads(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "list_threads", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out listThreadsOutput
	decode(t, result, &out)
	if out.Count != 2 || len(out.Threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", out.Count)
	}
	if out.Threads[0].MessageCount != 2 {
		t.Errorf("expected message count 2, got %d", out.Threads[0].MessageCount)
	}
	if len(out.Threads[0].Messages) != 0 {
		t.Error("list output should not carry message bodies")
	}
}

func TestGetThread(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "get_thread", map[string]any{"thread_id": "THR-1001"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out threadOutput
	decode(t, result, &out)
	if out.Subject != "Mixer arrived cracked" || len(out.Messages) != 2 {
		t.Errorf("unexpected thread output: %+v", out)
	}
}

func TestGetThreadNotFound(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "get_thread", map[string]any{"thread_id": "THR-0000"})
	if !result.IsError {
		t.Fatal("expected error result for unknown thread")
	}
	if extractText(result) == "" {
		t.Fatal("expected error message in result content")
	}
}

func TestGetThreadMissingID(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	// The SDK may reject the call at the schema level before the handler runs.
	result := callToolAllowError(t, srv, "get_thread", map[string]any{})
	if result == nil {
		return
	}
	if !result.IsError {
		t.Fatal("expected error result for missing thread_id")
	}
}

func TestListSummariesReviewQueue(t *testing.T) {
	svc := newFakeReviewService()
	svc.summaries[3] = &models.Summary{ID: 3, ThreadID: "THR-1002", Status: models.SummaryEdited}
	svc.nextID = 4
	srv := NewServer(svc, nil, nil, "test")

	result := callTool(t, srv, "list_summaries", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out listSummariesOutput
	decode(t, result, &out)
	if out.Count != 2 {
		t.Fatalf("expected 2 queued summaries, got %d", out.Count)
	}
	if out.Summaries[0].Status != "pending" || out.Summaries[1].Status != "edited" {
		t.Errorf("expected pending before edited, got %s then %s", out.Summaries[0].Status, out.Summaries[1].Status)
	}
}

func TestListSummariesByStatus(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "list_summaries", map[string]any{"status": "approved"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out listSummariesOutput
	decode(t, result, &out)
	if out.Count != 1 || out.Summaries[0].ID != 2 {
		t.Errorf("unexpected approved list: %+v", out)
	}

	bad := callTool(t, srv, "list_summaries", map[string]any{"status": "archived"})
	if !bad.IsError {
		t.Error("expected error for unknown status")
	}
}

func TestGetSummary(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "get_summary", map[string]any{"summary_id": 1})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out summaryOutput
	decode(t, result, &out)
	if out.ThreadID != "THR-1001" || out.WasEdited {
		t.Errorf("unexpected summary: %+v", out)
	}
	if out.Content.IssueSummary != "Customer received a cracked mixer bowl." {
		t.Errorf("expected original content, got %q", out.Content.IssueSummary)
	}
	if out.OrderID != "ORD-55" {
		t.Errorf("expected order reference ORD-55, got %q", out.OrderID)
	}
}

func TestSummarizeThread(t *testing.T) {
	svc := newFakeReviewService()
	srv := NewServer(svc, nil, nil, "test")

	result := callTool(t, srv, "summarize_thread", map[string]any{"thread_id": "THR-1002"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out summarizeThreadOutput
	decode(t, result, &out)
	if out.SummaryID != 3 {
		t.Errorf("expected summary id 3, got %d", out.SummaryID)
	}
	if svc.summaries[3] == nil || svc.summaries[3].Status != models.SummaryPending {
		t.Error("expected a new pending summary")
	}
}

func TestEditSummaryShowsEditedContent(t *testing.T) {
	svc := newFakeReviewService()
	srv := NewServer(svc, nil, nil, "test")

	result := callTool(t, srv, "edit_summary", map[string]any{
		"summary_id": 1,
		"patch":      map[string]any{"issue_summary": "Bowl cracked in transit.", "priority": "high"},
	})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out summaryOutput
	decode(t, result, &out)
	if out.Status != "edited" || !out.WasEdited {
		t.Errorf("expected edited status, got %+v", out)
	}
	if out.Content.IssueSummary != "Bowl cracked in transit." || out.Content.Priority != models.PriorityHigh {
		t.Errorf("expected edited content, got %+v", out.Content)
	}
	if svc.summaries[1].OriginalSummary.IssueSummary != "Customer received a cracked mixer bowl." {
		t.Error("original summary must not change")
	}
}

func TestEditSummaryAndApprove(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "edit_summary", map[string]any{
		"summary_id": 1,
		"patch":      map[string]any{"next_steps": "Ship a replacement bowl."},
		"approve":    true,
	})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out summaryOutput
	decode(t, result, &out)
	if out.Status != "approved" || out.ApprovedBy != "CE Associate" {
		t.Errorf("expected approved by CE Associate, got %+v", out)
	}
}

func TestApproveSummary(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "approve_summary", map[string]any{"summary_id": 1})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	again := callTool(t, srv, "approve_summary", map[string]any{"summary_id": 1})
	if !again.IsError {
		t.Fatal("expected error approving an already approved summary")
	}
}

func TestRejectSummary(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	blank := callTool(t, srv, "reject_summary", map[string]any{"summary_id": 1, "reason": "  "})
	if !blank.IsError {
		t.Fatal("expected error for blank reason")
	}

	result := callTool(t, srv, "reject_summary", map[string]any{"summary_id": 1, "reason": "Wrong order"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out summaryOutput
	decode(t, result, &out)
	if out.Status != "rejected" {
		t.Errorf("expected rejected, got %s", out.Status)
	}
}

func TestGetSummaryInvalidID(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "get_summary", map[string]any{"summary_id": 0})
	if !result.IsError {
		t.Fatal("expected error for non-positive summary id")
	}
}

func TestGetAnalytics(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "get_analytics", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out models.Analytics
	decode(t, result, &out)
	if out.TotalThreads != 2 || out.ApprovalRate != 50 {
		t.Errorf("unexpected analytics: %+v", out)
	}
}

func TestGetMetrics(t *testing.T) {
	oldest := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	mc := &fakeMetricsCalculator{metrics: &observability.Metrics{
		SummariesGenerated:  4,
		SummariesApproved:   3,
		ApprovedAfterEdit:   1,
		SummariesRejected:   1,
		GeneratedByPriority: map[string]int{"high": 2, "low": 2},
		RejectionReasons:    map[string]int{"duplicate": 1},
		EventCount:          9,
		OldestEvent:         &oldest,
	}}
	srv := NewServer(newFakeReviewService(), mc, nil, "test")

	result := callTool(t, srv, "get_metrics", map[string]any{"since": "30d"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out metricsOutput
	decode(t, result, &out)
	if out.SummariesGenerated != 4 || out.ApprovalRate != 75 {
		t.Errorf("unexpected metrics: %+v", out)
	}
	if out.GeneratedByPriority["high"] != 2 {
		t.Errorf("expected 2 high priority summaries, got %d", out.GeneratedByPriority["high"])
	}
	if out.OldestEvent != "2025-01-10T00:00:00Z" {
		t.Errorf("unexpected oldest event %q", out.OldestEvent)
	}
}

func TestGetMetricsDisabled(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "get_metrics", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error when metrics calculator is nil")
	}
}

func TestGetMetricsBadSince(t *testing.T) {
	mc := &fakeMetricsCalculator{metrics: &observability.Metrics{}}
	srv := NewServer(newFakeReviewService(), mc, nil, "test")

	result := callTool(t, srv, "get_metrics", map[string]any{"since": "7w"})
	if !result.IsError {
		t.Fatal("expected error for unsupported duration")
	}
}

func TestGetAlerts(t *testing.T) {
	ae := &fakeAlertEngine{alerts: []observability.Alert{
		{
			ID:          "review-backlog",
			Condition:   "review_backlog_too_large",
			Severity:    observability.SeverityMedium,
			Message:     "30 summaries await review, exceeding the maximum of 25",
			TriggeredAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		},
	}}
	srv := NewServer(newFakeReviewService(), nil, ae, "test")

	result := callTool(t, srv, "get_alerts", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out getAlertsOutput
	decode(t, result, &out)
	if out.Count != 1 {
		t.Fatalf("expected 1 alert, got %d", out.Count)
	}
	if out.Alerts[0].Severity != "medium" || out.Alerts[0].Condition != "review_backlog_too_large" {
		t.Errorf("unexpected alert: %+v", out.Alerts[0])
	}
}

func TestGetAlertsDisabled(t *testing.T) {
	srv := NewServer(newFakeReviewService(), nil, nil, "test")

	result := callTool(t, srv, "get_alerts", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error when alert engine is nil")
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"7d", false},
		{"30d", false},
		{"24h", false},
		{"1h", false},
		{"", true},
		{"x", true},
		{"7x", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseSince(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSince(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
