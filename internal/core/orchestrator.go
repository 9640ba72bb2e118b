package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/valter-silva-au/thread-review/pkg/models"
)

// View is the list the reviewer is looking at.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewThreads   View = "threads"
	ViewReview    View = "review"
	ViewApproved  View = "approved"
)

// Views lists every view in display order.
var Views = []View{ViewDashboard, ViewThreads, ViewReview, ViewApproved}

// Modal identifies the detail panel that is open, if any.
type Modal string

const (
	ModalNone    Modal = ""
	ModalThread  Modal = "thread"
	ModalSummary Modal = "summary"
)

// Invalidation is a set of cached views a mutation made stale.
type Invalidation uint8

const (
	InvalidateAnalytics Invalidation = 1 << iota
	InvalidateThreads
	InvalidateSummaries

	InvalidateAll = InvalidateAnalytics | InvalidateThreads | InvalidateSummaries
)

// Has reports whether every bit of o is set in i.
func (i Invalidation) Has(o Invalidation) bool { return i&o == o }

// BatchProgress is the live state of a running batch.
type BatchProgress struct {
	Running bool
	Done    int
	Total   int
}

// ViewState is the reviewer-facing state the orchestrator owns. Values
// returned by Snapshot are copies and safe to keep.
type ViewState struct {
	View            View
	Analytics       *models.Analytics
	Threads         []models.Thread
	Summaries       []models.Summary
	SelectedThread  *models.Thread
	SelectedSummary *models.Summary
	Modal           Modal
	Progress        BatchProgress
	// Stale holds the cached views whose last refresh failed.
	Stale Invalidation
}

func (s ViewState) clone() ViewState {
	out := s
	if s.Analytics != nil {
		a := *s.Analytics
		out.Analytics = &a
	}
	out.Threads = slices.Clone(s.Threads)
	out.Summaries = make([]models.Summary, len(s.Summaries))
	for i := range s.Summaries {
		out.Summaries[i] = *s.Summaries[i].Clone()
	}
	if s.SelectedThread != nil {
		t := *s.SelectedThread
		t.Messages = slices.Clone(t.Messages)
		out.SelectedThread = &t
	}
	if s.SelectedSummary != nil {
		out.SelectedSummary = s.SelectedSummary.Clone()
	}
	return out
}

// OrchestratorOptions configures a ReviewOrchestrator. Backend and Machine
// are required.
type OrchestratorOptions struct {
	Backend Backend
	Machine SummaryStateMachine
	Notices *NotificationSink
	Writer  ArtifactWriter
	Events  EventLogger
	Logger  zerolog.Logger
	// Batch supplies the policy for ProcessAllThreads. Its Logger and
	// Events are replaced by the orchestrator's.
	Batch BatchOptions
}

// ReviewOrchestrator turns reviewer intents into validator, state machine,
// and batch calls, then refreshes exactly the cached views each intent
// invalidated. The lock guards view state only and is never held across a
// backend call.
type ReviewOrchestrator struct {
	backend Backend
	machine SummaryStateMachine
	notices *NotificationSink
	writer  ArtifactWriter
	events  EventLogger
	log     zerolog.Logger
	batch   BatchOptions

	mu    sync.Mutex
	state ViewState
}

// NewReviewOrchestrator creates an orchestrator starting on the dashboard.
func NewReviewOrchestrator(opts OrchestratorOptions) *ReviewOrchestrator {
	notices := opts.Notices
	if notices == nil {
		notices = NewNotificationSink(DefaultNotificationTTL)
	}
	log := opts.Logger.With().Str("component", "orchestrator").Logger()
	batch := opts.Batch
	batch.Logger = opts.Logger
	batch.Events = opts.Events
	return &ReviewOrchestrator{
		backend: opts.Backend,
		machine: opts.Machine,
		notices: notices,
		writer:  opts.Writer,
		events:  opts.Events,
		log:     log,
		batch:   batch,
		state:   ViewState{View: ViewDashboard},
	}
}

// Snapshot returns a copy of the current view state.
func (o *ReviewOrchestrator) Snapshot() ViewState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Notification returns the current status message, if one is visible.
func (o *ReviewOrchestrator) Notification() (Notification, bool) {
	return o.notices.Current()
}

func (o *ReviewOrchestrator) update(fn func(*ViewState)) {
	o.mu.Lock()
	fn(&o.state)
	o.mu.Unlock()
}

// fail reports err through the notification sink and returns it.
func (o *ReviewOrchestrator) fail(op string, err error) error {
	o.log.Warn().Err(err).Str("op", op).Msg("review operation failed")
	o.notices.Error(err)
	return err
}

// Load fetches every cached view.
func (o *ReviewOrchestrator) Load(ctx context.Context) error {
	return o.Refresh(ctx, InvalidateAll)
}

// Refresh re-fetches the cached views named by inv. Views that fail to load
// keep their previous contents and are marked stale.
func (o *ReviewOrchestrator) Refresh(ctx context.Context, inv Invalidation) error {
	o.mu.Lock()
	view := o.state.View
	o.mu.Unlock()

	var (
		analytics *models.Analytics
		threads   []models.Thread
		summaries []models.Summary
		loaded    Invalidation
		errs      []error
	)

	if inv.Has(InvalidateAnalytics) {
		a, err := o.backend.Analytics(ctx)
		if err != nil {
			errs = append(errs, remoteErr("loading analytics", err))
		} else {
			analytics = a
			loaded |= InvalidateAnalytics
		}
	}
	if inv.Has(InvalidateThreads) {
		t, err := o.backend.ListThreads(ctx)
		if err != nil {
			errs = append(errs, remoteErr("loading threads", err))
		} else {
			threads = t
			loaded |= InvalidateThreads
		}
	}
	if inv.Has(InvalidateSummaries) {
		s, err := o.summariesFor(ctx, view)
		if err != nil {
			errs = append(errs, err)
		} else {
			summaries = s
			loaded |= InvalidateSummaries
		}
	}

	o.update(func(st *ViewState) {
		if loaded.Has(InvalidateAnalytics) {
			st.Analytics = analytics
		}
		if loaded.Has(InvalidateThreads) {
			st.Threads = threads
		}
		// A view switch while loading makes this list the wrong one.
		if loaded.Has(InvalidateSummaries) && st.View == view {
			st.Summaries = summaries
		}
		st.Stale = (st.Stale | inv) &^ loaded
	})

	if err := errors.Join(errs...); err != nil {
		o.log.Warn().Err(err).Msg("refresh incomplete")
		return err
	}
	return nil
}

// summariesFor loads the summary list a view shows. The approved view lists
// approved summaries; every other view lists the review queue, pending
// before edited.
func (o *ReviewOrchestrator) summariesFor(ctx context.Context, view View) ([]models.Summary, error) {
	if view == ViewApproved {
		s, err := o.backend.ListSummaries(ctx, models.SummaryApproved)
		if err != nil {
			return nil, remoteErr("loading approved summaries", err)
		}
		return s, nil
	}
	return o.ReviewQueue(ctx)
}

// ReviewQueue fetches the summaries awaiting review: pending, then edited.
func (o *ReviewOrchestrator) ReviewQueue(ctx context.Context) ([]models.Summary, error) {
	pending, err := o.backend.ListSummaries(ctx, models.SummaryPending)
	if err != nil {
		return nil, remoteErr("loading pending summaries", err)
	}
	edited, err := o.backend.ListSummaries(ctx, models.SummaryEdited)
	if err != nil {
		return nil, remoteErr("loading edited summaries", err)
	}
	return append(pending, edited...), nil
}

// ListSummaries fetches summaries in one status without touching view state.
func (o *ReviewOrchestrator) ListSummaries(ctx context.Context, status models.SummaryStatus) ([]models.Summary, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown summary status %q", ErrUsage, status)
	}
	s, err := o.backend.ListSummaries(ctx, status)
	if err != nil {
		return nil, remoteErr("listing summaries", err)
	}
	return s, nil
}

// SetView switches the active list and reloads the summaries it shows.
func (o *ReviewOrchestrator) SetView(ctx context.Context, v View) error {
	if !slices.Contains(Views, v) {
		return fmt.Errorf("%w: unknown view %q", ErrUsage, v)
	}
	o.update(func(st *ViewState) {
		st.View = v
		st.Summaries = nil
	})
	return o.Refresh(ctx, InvalidateSummaries)
}

// ImportFile validates raw and submits it. Nothing reaches the backend when
// validation fails.
func (o *ReviewOrchestrator) ImportFile(ctx context.Context, raw []byte, format ImportFormat) (*models.ImportResult, error) {
	payload, err := ValidateImportAs(raw, format)
	if err != nil {
		return nil, o.fail("import", fmt.Errorf("importing threads: %w", err))
	}

	res, err := o.backend.ImportThreads(ctx, payload)
	if err != nil {
		return nil, o.fail("import", remoteErr("importing threads", err))
	}

	logEvent(o.events, "thread.imported", map[string]any{
		"imported":   res.Imported,
		"total":      res.Total,
		"thread_ids": ThreadIDs(payload),
	})
	o.notices.Success(fmt.Sprintf("Successfully imported %d threads", res.Imported))
	_ = o.Refresh(ctx, InvalidateAnalytics|InvalidateThreads)
	return res, nil
}

// activeThreads returns the threads that already have a pending or edited
// summary, read fresh from the backend.
func (o *ReviewOrchestrator) activeThreads(ctx context.Context) (map[string]bool, error) {
	queue, err := o.ReviewQueue(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(queue))
	for _, s := range queue {
		active[s.ThreadID] = true
	}
	return active, nil
}

func (o *ReviewOrchestrator) summarize(ctx context.Context, threadID string) (*models.SummarizeResult, error) {
	res, err := o.backend.SummarizeThread(ctx, threadID)
	if err != nil {
		err = remoteErr(fmt.Sprintf("summarizing thread %s", threadID), err)
		logEvent(o.events, "summary.generate_failed", map[string]any{
			"thread_id": threadID,
			"error":     err.Error(),
		})
		return nil, err
	}
	logEvent(o.events, "summary.generated", map[string]any{
		"thread_id":  threadID,
		"summary_id": res.SummaryID,
		"priority":   string(res.Summary.Priority),
	})
	return res, nil
}

func (o *ReviewOrchestrator) setProgress(p BatchProgress) {
	o.update(func(st *ViewState) { st.Progress = p })
}

// SummarizeThread requests a summary for one thread. A thread that already
// has a summary awaiting review is refused.
func (o *ReviewOrchestrator) SummarizeThread(ctx context.Context, threadID string) (*models.SummarizeResult, error) {
	active, err := o.activeThreads(ctx)
	if err != nil {
		return nil, o.fail("summarize", err)
	}
	if active[threadID] {
		return nil, o.fail("summarize", fmt.Errorf("summarizing thread %s: %w: thread already has a summary awaiting review", threadID, ErrInvalidTransition))
	}

	o.setProgress(BatchProgress{Running: true, Total: 1})
	res, err := o.summarize(ctx, threadID)
	o.setProgress(BatchProgress{Done: 1, Total: 1})
	if err != nil {
		return nil, o.fail("summarize", err)
	}

	o.notices.Success("Summary generated successfully")
	_ = o.Refresh(ctx, InvalidateAnalytics|InvalidateSummaries)
	return res, nil
}

// ProcessAllThreads summarizes every listed thread that has no summary
// awaiting review, one at a time. Per-thread failures are collected in the
// report. onProgress may be nil.
func (o *ReviewOrchestrator) ProcessAllThreads(ctx context.Context, onProgress ProgressFunc) (BatchReport[string], error) {
	threads, err := o.backend.ListThreads(ctx)
	if err != nil {
		return BatchReport[string]{}, o.fail("batch", remoteErr("listing threads", err))
	}
	active, err := o.activeThreads(ctx)
	if err != nil {
		return BatchReport[string]{}, o.fail("batch", err)
	}

	items := make([]string, 0, len(threads))
	for _, t := range threads {
		if !active[t.ThreadID] {
			items = append(items, t.ThreadID)
		}
	}
	skipped := len(threads) - len(items)

	o.setProgress(BatchProgress{Running: true, Total: len(items)})
	progress := func(done, total int) {
		o.setProgress(BatchProgress{Running: done < total, Done: done, Total: total})
		if onProgress != nil {
			onProgress(done, total)
		}
	}
	op := func(ctx context.Context, id string) error {
		_, err := o.summarize(ctx, id)
		return err
	}

	o.mu.Lock()
	opts := o.batch
	o.mu.Unlock()
	opts.Label = "process-all-threads"
	report, err := RunBatch(ctx, items, op, progress, opts)
	o.update(func(st *ViewState) { st.Progress.Running = false })

	if err != nil && report.Attempted == 0 {
		if errors.Is(err, ErrUsage) && skipped > 0 {
			err = fmt.Errorf("%w (%d threads already have a summary awaiting review)", err, skipped)
		}
		return report, o.fail("batch", err)
	}

	msg := fmt.Sprintf("Processed %d/%d threads", report.Succeeded, report.Total)
	if n := report.Failed(); n > 0 {
		msg += fmt.Sprintf(", %d failed", n)
	}
	if skipped > 0 {
		msg += fmt.Sprintf(", %d skipped with a summary awaiting review", skipped)
	}
	if report.Cancelled {
		msg += " (cancelled)"
	}
	if report.Failed() > 0 || report.Cancelled {
		o.notices.Show(NotifyError, msg)
	} else {
		o.notices.Success(msg)
	}

	// The batch is over even if ctx was cancelled; refresh with a live context.
	_ = o.Refresh(context.WithoutCancel(ctx), InvalidateAnalytics|InvalidateSummaries)
	return report, err
}

// OpenThread loads a thread and shows it in the thread panel, closing any
// other panel.
func (o *ReviewOrchestrator) OpenThread(ctx context.Context, threadID string) (*models.Thread, error) {
	t, err := o.backend.GetThread(ctx, threadID)
	if err != nil {
		return nil, o.fail("open thread", remoteErr(fmt.Sprintf("loading thread %s", threadID), err))
	}
	o.update(func(st *ViewState) {
		st.SelectedThread = t
		st.SelectedSummary = nil
		st.Modal = ModalThread
	})
	return t, nil
}

// OpenSummary loads a summary and shows it in the summary panel, closing any
// other panel.
func (o *ReviewOrchestrator) OpenSummary(ctx context.Context, id int64) (*models.Summary, error) {
	s, err := o.backend.GetSummary(ctx, id)
	if err != nil {
		return nil, o.fail("open summary", remoteErr(fmt.Sprintf("loading summary %d", id), err))
	}
	o.update(func(st *ViewState) {
		st.SelectedSummary = s
		st.SelectedThread = nil
		st.Modal = ModalSummary
	})
	return s.Clone(), nil
}

// CloseModal closes whichever panel is open.
func (o *ReviewOrchestrator) CloseModal() {
	o.update(func(st *ViewState) {
		st.Modal = ModalNone
		st.SelectedThread = nil
		st.SelectedSummary = nil
	})
}

// settled records a summary after a transition. A summary that left the
// review queue closes its panel.
func (o *ReviewOrchestrator) settled(s *models.Summary) {
	o.update(func(st *ViewState) {
		if st.SelectedSummary == nil || st.SelectedSummary.ID != s.ID {
			return
		}
		if s.Status.IsTerminal() {
			st.Modal = ModalNone
			st.SelectedSummary = nil
			return
		}
		st.SelectedSummary = s.Clone()
	})
}

// SaveEdits merges patch into the summary's effective content. With approve
// set the summary is approved afterwards, and only if the edit succeeded. If
// the approve step fails, the view still reflects the saved edit.
func (o *ReviewOrchestrator) SaveEdits(ctx context.Context, id int64, patch models.SummaryPatch, approve bool) (*models.Summary, error) {
	var (
		s   *models.Summary
		err error
	)
	if approve {
		s, err = o.machine.SaveAndApprove(ctx, id, patch)
	} else {
		s, err = o.machine.Edit(ctx, id, patch)
	}
	if err != nil {
		if s != nil {
			// The edit landed before the approve step failed.
			o.settled(s)
			_ = o.Refresh(ctx, InvalidateAnalytics|InvalidateSummaries)
		}
		return nil, o.fail("save edits", err)
	}

	o.settled(s)
	if approve {
		o.notices.Success("Summary saved and approved")
	} else {
		o.notices.Success("Summary saved")
	}
	_ = o.Refresh(ctx, InvalidateAnalytics|InvalidateSummaries)
	return s, nil
}

// Approve approves a pending or edited summary.
func (o *ReviewOrchestrator) Approve(ctx context.Context, id int64) (*models.Summary, error) {
	s, err := o.machine.Approve(ctx, id)
	if err != nil {
		return nil, o.fail("approve", err)
	}
	o.settled(s)
	o.notices.Success("Summary approved")
	_ = o.Refresh(ctx, InvalidateAnalytics|InvalidateSummaries)
	return s, nil
}

// Reject rejects a pending or edited summary. reason must not be blank.
func (o *ReviewOrchestrator) Reject(ctx context.Context, id int64, reason string) (*models.Summary, error) {
	s, err := o.machine.Reject(ctx, id, reason)
	if err != nil {
		return nil, o.fail("reject", err)
	}
	o.settled(s)
	o.notices.Success("Summary rejected")
	_ = o.Refresh(ctx, InvalidateAnalytics|InvalidateSummaries)
	return s, nil
}

// SetBatchPolicy replaces the stop-on-error policy and pacing used by later
// ProcessAllThreads runs. A nil limiter means no pacing.
func (o *ReviewOrchestrator) SetBatchPolicy(stopOnError bool, limiter *rate.Limiter) {
	o.update(func(*ViewState) {
		o.batch.StopOnError = stopOnError
		o.batch.Limiter = limiter
	})
}

// Export fetches the export payload of an approved summary and writes it
// through the configured artifact writer. It changes no state.
func (o *ReviewOrchestrator) Export(ctx context.Context, id int64) (string, error) {
	return o.ExportWith(ctx, id, o.writer)
}

// ExportWith is Export with an explicit artifact writer.
func (o *ReviewOrchestrator) ExportWith(ctx context.Context, id int64, writer ArtifactWriter) (string, error) {
	if writer == nil {
		return "", o.fail("export", fmt.Errorf("%w: no export destination configured", ErrUsage))
	}
	s, err := o.backend.GetSummary(ctx, id)
	if err != nil {
		return "", o.fail("export", remoteErr(fmt.Sprintf("loading summary %d", id), err))
	}
	if s.Status != models.SummaryApproved {
		return "", o.fail("export", fmt.Errorf("exporting summary %d: %w: only approved summaries can be exported (status %s)", id, ErrInvalidTransition, s.Status))
	}

	payload, err := o.backend.ExportSummary(ctx, id)
	if err != nil {
		return "", o.fail("export", remoteErr(fmt.Sprintf("exporting summary %d", id), err))
	}
	path, err := writer.Write(models.ExportArtifact{SummaryID: id, ThreadID: s.ThreadID, Payload: payload})
	if err != nil {
		return "", o.fail("export", fmt.Errorf("writing export for summary %d: %w", id, err))
	}

	logEvent(o.events, "summary.exported", map[string]any{
		"summary_id": id,
		"thread_id":  s.ThreadID,
		"path":       path,
	})
	o.notices.Success("Summary exported to " + path)
	return path, nil
}

// DeleteThread removes a thread from the backend.
func (o *ReviewOrchestrator) DeleteThread(ctx context.Context, threadID string) error {
	if err := o.backend.DeleteThread(ctx, threadID); err != nil {
		return o.fail("delete thread", remoteErr(fmt.Sprintf("deleting thread %s", threadID), err))
	}
	o.update(func(st *ViewState) {
		if st.SelectedThread != nil && st.SelectedThread.ThreadID == threadID {
			st.SelectedThread = nil
			st.Modal = ModalNone
		}
	})
	o.notices.Success("Thread deleted")
	_ = o.Refresh(ctx, InvalidateAll)
	return nil
}

// Health reports backend health.
func (o *ReviewOrchestrator) Health(ctx context.Context) (*models.HealthStatus, error) {
	h, err := o.backend.Health(ctx)
	if err != nil {
		return nil, o.fail("health", remoteErr("checking backend health", err))
	}
	return h, nil
}

// Summary fetches one summary without opening it.
func (o *ReviewOrchestrator) Summary(ctx context.Context, id int64) (*models.Summary, error) {
	s, err := o.backend.GetSummary(ctx, id)
	if err != nil {
		return nil, remoteErr(fmt.Sprintf("loading summary %d", id), err)
	}
	return s, nil
}

// Thread fetches one thread without opening it.
func (o *ReviewOrchestrator) Thread(ctx context.Context, threadID string) (*models.Thread, error) {
	t, err := o.backend.GetThread(ctx, threadID)
	if err != nil {
		return nil, remoteErr(fmt.Sprintf("loading thread %s", threadID), err)
	}
	return t, nil
}

// Threads fetches every thread without touching view state.
func (o *ReviewOrchestrator) Threads(ctx context.Context) ([]models.Thread, error) {
	t, err := o.backend.ListThreads(ctx)
	if err != nil {
		return nil, remoteErr("listing threads", err)
	}
	return t, nil
}

// Analytics fetches the dashboard counts without touching view state.
func (o *ReviewOrchestrator) Analytics(ctx context.Context) (*models.Analytics, error) {
	a, err := o.backend.Analytics(ctx)
	if err != nil {
		return nil, remoteErr("loading analytics", err)
	}
	return a, nil
}
