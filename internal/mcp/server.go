// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the review queue as MCP tools, so an assistant can read threads and
// summaries and record review decisions on a reviewer's behalf.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/thread-review/internal/observability"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

// ReviewService is the part of the review orchestrator the server drives.
type ReviewService interface {
	Threads(ctx context.Context) ([]models.Thread, error)
	Thread(ctx context.Context, threadID string) (*models.Thread, error)
	ReviewQueue(ctx context.Context) ([]models.Summary, error)
	ListSummaries(ctx context.Context, status models.SummaryStatus) ([]models.Summary, error)
	Summary(ctx context.Context, id int64) (*models.Summary, error)
	SummarizeThread(ctx context.Context, threadID string) (*models.SummarizeResult, error)
	SaveEdits(ctx context.Context, id int64, patch models.SummaryPatch, approve bool) (*models.Summary, error)
	Approve(ctx context.Context, id int64) (*models.Summary, error)
	Reject(ctx context.Context, id int64, reason string) (*models.Summary, error)
	Analytics(ctx context.Context) (*models.Analytics, error)
}

// Server wraps the review service and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	review      ReviewService
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server over review. metricsCalc and
// alertEngine may be nil.
func NewServer(review ReviewService, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		review:      review,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "trv", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio, blocking until the client disconnects or the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listThreadsInput struct{}

type threadOutput struct {
	ThreadID     string           `json:"thread_id"`
	Topic        string           `json:"topic"`
	Subject      string           `json:"subject"`
	InitiatedBy  string           `json:"initiated_by"`
	OrderID      string           `json:"order_id"`
	Product      string           `json:"product"`
	MessageCount int              `json:"message_count"`
	Messages     []models.Message `json:"messages,omitempty"`
}

type listThreadsOutput struct {
	Threads []threadOutput `json:"threads"`
	Count   int            `json:"count"`
}

type getThreadInput struct {
	ThreadID string `json:"thread_id" jsonschema:"the thread identifier, e.g. THR-1001"`
}

type listSummariesInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by status (pending, edited, approved, rejected). Defaults to the review queue: pending then edited."`
}

type summaryOutput struct {
	ID           int64                 `json:"id"`
	ThreadID     string                `json:"thread_id"`
	Status       string                `json:"status"`
	WasEdited    bool                  `json:"was_edited"`
	Content      models.SummaryContent `json:"content"`
	CreatedAt    string                `json:"created_at,omitempty"`
	ApprovedBy   string                `json:"approved_by,omitempty"`
	OrderID      string                `json:"order_id,omitempty"`
	OrderProduct string                `json:"order_product,omitempty"`
}

type listSummariesOutput struct {
	Summaries []summaryOutput `json:"summaries"`
	Count     int             `json:"count"`
}

type getSummaryInput struct {
	SummaryID int64 `json:"summary_id" jsonschema:"the numeric summary identifier"`
}

type summarizeThreadInput struct {
	ThreadID string `json:"thread_id" jsonschema:"the thread to summarize"`
}

type summarizeThreadOutput struct {
	SummaryID int64                 `json:"summary_id"`
	Summary   models.SummaryContent `json:"summary"`
}

type editSummaryInput struct {
	SummaryID int64               `json:"summary_id" jsonschema:"the numeric summary identifier"`
	Patch     models.SummaryPatch `json:"patch" jsonschema:"fields to change; omitted fields keep their current value"`
	Approve   bool                `json:"approve,omitempty" jsonschema:"approve the summary after the edit is saved"`
}

type reviewDecisionInput struct {
	SummaryID int64 `json:"summary_id" jsonschema:"the numeric summary identifier"`
}

type rejectSummaryInput struct {
	SummaryID int64  `json:"summary_id" jsonschema:"the numeric summary identifier"`
	Reason    string `json:"reason" jsonschema:"why the summary is rejected; must not be blank"`
}

type getAnalyticsInput struct{}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	ThreadsImported     int            `json:"threads_imported"`
	SummariesGenerated  int            `json:"summaries_generated"`
	GenerationFailures  int            `json:"generation_failures"`
	SummariesEdited     int            `json:"summaries_edited"`
	SummariesApproved   int            `json:"summaries_approved"`
	SummariesRejected   int            `json:"summaries_rejected"`
	SummariesExported   int            `json:"summaries_exported"`
	ApprovalRate        float64        `json:"approval_rate"`
	EditRate            float64        `json:"edit_rate"`
	BatchRuns           int            `json:"batch_runs"`
	BatchFailureRate    float64        `json:"batch_failure_rate"`
	GeneratedByPriority map[string]int `json:"generated_by_priority"`
	RejectionReasons    map[string]int `json:"rejection_reasons"`
	EventCount          int            `json:"event_count"`
	OldestEvent         string         `json:"oldest_event,omitempty"`
	NewestEvent         string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_threads",
		Description: "List every imported email thread with its topic, subject, order reference, and message count.",
	}, s.handleListThreads)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_thread",
		Description: "Get one email thread including all of its messages.",
	}, s.handleGetThread)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_summaries",
		Description: "List summaries. Without a status this is the review queue: pending summaries first, then edited ones.",
	}, s.handleListSummaries)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_summary",
		Description: "Get one summary. The content shown is the reviewer's edit when one exists, otherwise the generated original.",
	}, s.handleGetSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "summarize_thread",
		Description: "Generate a new summary for a thread. Fails if the thread already has a summary awaiting review.",
	}, s.handleSummarizeThread)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "edit_summary",
		Description: "Save reviewer edits to a pending or edited summary, optionally approving it afterwards.",
	}, s.handleEditSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "approve_summary",
		Description: "Approve a pending or edited summary. Approved summaries are final.",
	}, s.handleApproveSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "reject_summary",
		Description: "Reject a pending or edited summary with a reason. Rejected summaries are final.",
	}, s.handleRejectSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_analytics",
		Description: "Get backend dashboard counts: threads, summaries, pending, approved, and approval rate.",
	}, s.handleGetAnalytics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get review metrics aggregated from the local event log: generation, edits, decisions, exports, and batch runs.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (review backlog, stale reviews, batch failures, rejection rate).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListThreads(ctx context.Context, _ *gomcp.CallToolRequest, _ listThreadsInput) (*gomcp.CallToolResult, listThreadsOutput, error) {
	threads, err := s.review.Threads(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("listing threads: %s", err)), listThreadsOutput{}, nil
	}

	out := listThreadsOutput{
		Threads: make([]threadOutput, len(threads)),
		Count:   len(threads),
	}
	for i := range threads {
		out.Threads[i] = threadToOutput(&threads[i], false)
	}
	return nil, out, nil
}

func (s *Server) handleGetThread(ctx context.Context, _ *gomcp.CallToolRequest, input getThreadInput) (*gomcp.CallToolResult, threadOutput, error) {
	if input.ThreadID == "" {
		return errorResult("thread_id is required"), threadOutput{}, nil
	}

	thread, err := s.review.Thread(ctx, input.ThreadID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting thread %s: %s", input.ThreadID, err)), threadOutput{}, nil
	}
	return nil, threadToOutput(thread, true), nil
}

func (s *Server) handleListSummaries(ctx context.Context, _ *gomcp.CallToolRequest, input listSummariesInput) (*gomcp.CallToolResult, listSummariesOutput, error) {
	var (
		summaries []models.Summary
		err       error
	)
	if input.Status != "" {
		summaries, err = s.review.ListSummaries(ctx, models.SummaryStatus(input.Status))
	} else {
		summaries, err = s.review.ReviewQueue(ctx)
	}
	if err != nil {
		return errorResult(fmt.Sprintf("listing summaries: %s", err)), listSummariesOutput{}, nil
	}

	out := listSummariesOutput{
		Summaries: make([]summaryOutput, len(summaries)),
		Count:     len(summaries),
	}
	for i := range summaries {
		out.Summaries[i] = summaryToOutput(&summaries[i])
	}
	return nil, out, nil
}

func (s *Server) handleGetSummary(ctx context.Context, _ *gomcp.CallToolRequest, input getSummaryInput) (*gomcp.CallToolResult, summaryOutput, error) {
	if input.SummaryID <= 0 {
		return errorResult("summary_id must be a positive integer"), summaryOutput{}, nil
	}

	summary, err := s.review.Summary(ctx, input.SummaryID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting summary %d: %s", input.SummaryID, err)), summaryOutput{}, nil
	}
	return nil, summaryToOutput(summary), nil
}

func (s *Server) handleSummarizeThread(ctx context.Context, _ *gomcp.CallToolRequest, input summarizeThreadInput) (*gomcp.CallToolResult, summarizeThreadOutput, error) {
	if input.ThreadID == "" {
		return errorResult("thread_id is required"), summarizeThreadOutput{}, nil
	}

	res, err := s.review.SummarizeThread(ctx, input.ThreadID)
	if err != nil {
		return errorResult(fmt.Sprintf("summarizing thread %s: %s", input.ThreadID, err)), summarizeThreadOutput{}, nil
	}
	return nil, summarizeThreadOutput{SummaryID: res.SummaryID, Summary: res.Summary}, nil
}

func (s *Server) handleEditSummary(ctx context.Context, _ *gomcp.CallToolRequest, input editSummaryInput) (*gomcp.CallToolResult, summaryOutput, error) {
	if input.SummaryID <= 0 {
		return errorResult("summary_id must be a positive integer"), summaryOutput{}, nil
	}

	summary, err := s.review.SaveEdits(ctx, input.SummaryID, input.Patch, input.Approve)
	if err != nil {
		return errorResult(fmt.Sprintf("editing summary %d: %s", input.SummaryID, err)), summaryOutput{}, nil
	}
	return nil, summaryToOutput(summary), nil
}

func (s *Server) handleApproveSummary(ctx context.Context, _ *gomcp.CallToolRequest, input reviewDecisionInput) (*gomcp.CallToolResult, summaryOutput, error) {
	if input.SummaryID <= 0 {
		return errorResult("summary_id must be a positive integer"), summaryOutput{}, nil
	}

	summary, err := s.review.Approve(ctx, input.SummaryID)
	if err != nil {
		return errorResult(fmt.Sprintf("approving summary %d: %s", input.SummaryID, err)), summaryOutput{}, nil
	}
	return nil, summaryToOutput(summary), nil
}

func (s *Server) handleRejectSummary(ctx context.Context, _ *gomcp.CallToolRequest, input rejectSummaryInput) (*gomcp.CallToolResult, summaryOutput, error) {
	if input.SummaryID <= 0 {
		return errorResult("summary_id must be a positive integer"), summaryOutput{}, nil
	}

	summary, err := s.review.Reject(ctx, input.SummaryID, input.Reason)
	if err != nil {
		return errorResult(fmt.Sprintf("rejecting summary %d: %s", input.SummaryID, err)), summaryOutput{}, nil
	}
	return nil, summaryToOutput(summary), nil
}

func (s *Server) handleGetAnalytics(ctx context.Context, _ *gomcp.CallToolRequest, _ getAnalyticsInput) (*gomcp.CallToolResult, models.Analytics, error) {
	a, err := s.review.Analytics(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("loading analytics: %s", err)), models.Analytics{}, nil
	}
	return nil, *a, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := ParseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	m, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		ThreadsImported:     m.ThreadsImported,
		SummariesGenerated:  m.SummariesGenerated,
		GenerationFailures:  m.GenerationFailures,
		SummariesEdited:     m.SummariesEdited,
		SummariesApproved:   m.SummariesApproved,
		SummariesRejected:   m.SummariesRejected,
		SummariesExported:   m.SummariesExported,
		ApprovalRate:        m.ApprovalRate(),
		EditRate:            m.EditRate(),
		BatchRuns:           m.BatchRuns,
		BatchFailureRate:    m.BatchFailureRate(),
		GeneratedByPriority: m.GeneratedByPriority,
		RejectionReasons:    m.RejectionReasons,
		EventCount:          m.EventCount,
	}
	if m.OldestEvent != nil {
		out.OldestEvent = m.OldestEvent.Format(time.RFC3339)
	}
	if m.NewestEvent != nil {
		out.NewestEvent = m.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func threadToOutput(t *models.Thread, withMessages bool) threadOutput {
	out := threadOutput{
		ThreadID:     t.ThreadID,
		Topic:        t.Topic,
		Subject:      t.Subject,
		InitiatedBy:  string(t.InitiatedBy),
		OrderID:      t.OrderID,
		Product:      t.Product,
		MessageCount: len(t.Messages),
	}
	if withMessages {
		out.Messages = t.Messages
	}
	return out
}

func summaryToOutput(s *models.Summary) summaryOutput {
	out := summaryOutput{
		ID:        s.ID,
		ThreadID:  s.ThreadID,
		Status:    string(s.Status),
		WasEdited: s.EditedSummary != nil,
		Content:   s.EffectiveContent(),
		CreatedAt: s.CreatedAt,
	}
	if s.ApprovedBy != nil {
		out.ApprovedBy = *s.ApprovedBy
	}
	if s.CRMContext != nil {
		out.OrderID = s.CRMContext.OrderID
		out.OrderProduct = s.CRMContext.Product
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		GeneratedByPriority: make(map[string]int),
		RejectionReasons:    make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding time in the past.
func ParseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
