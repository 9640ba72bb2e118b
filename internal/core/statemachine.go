package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

// ReviewAction is a reviewer operation on a summary.
type ReviewAction string

const (
	ActionEdit    ReviewAction = "edit"
	ActionApprove ReviewAction = "approve"
	ActionReject  ReviewAction = "reject"
)

// NextStatus returns the status a summary in state from moves to when action
// is applied. Approved and rejected summaries accept no action.
func NextStatus(from models.SummaryStatus, action ReviewAction) (models.SummaryStatus, error) {
	if from != models.SummaryPending && from != models.SummaryEdited {
		return from, fmt.Errorf("%w: cannot %s a summary that is %s", ErrInvalidTransition, action, from)
	}
	switch action {
	case ActionEdit:
		return models.SummaryEdited, nil
	case ActionApprove:
		return models.SummaryApproved, nil
	case ActionReject:
		return models.SummaryRejected, nil
	default:
		return from, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
}

// ValidatePatch checks that every enumerated field the patch sets holds an
// allowed value. Free-text fields are optional and unchecked.
func ValidatePatch(p models.SummaryPatch) error {
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q (want one of %v)", ErrInvalidTransition, *p.Priority, models.Priorities)
	}
	if p.ResolutionStatus != nil && !p.ResolutionStatus.Valid() {
		return fmt.Errorf("%w: invalid resolution status %q (want one of %v)", ErrInvalidTransition, *p.ResolutionStatus, models.ResolutionStatuses)
	}
	if p.Sentiment != nil && !p.Sentiment.Valid() {
		return fmt.Errorf("%w: invalid sentiment %q (want one of %v)", ErrInvalidTransition, *p.Sentiment, models.Sentiments)
	}
	return nil
}

// MergePatch applies p field by field onto a copy of base. Fields the patch
// leaves nil keep their base value; tags are de-duplicated.
func MergePatch(base models.SummaryContent, p models.SummaryPatch) models.SummaryContent {
	out := base.Clone()
	if p.IssueSummary != nil {
		out.IssueSummary = *p.IssueSummary
	}
	if p.NextSteps != nil {
		out.NextSteps = *p.NextSteps
	}
	if p.KeyActions != nil {
		out.KeyActions = append([]string{}, (*p.KeyActions)...)
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.ResolutionStatus != nil {
		out.ResolutionStatus = *p.ResolutionStatus
	}
	if p.Sentiment != nil {
		out.Sentiment = *p.Sentiment
	}
	if p.Tags != nil {
		out.Tags = NormaliseTags(*p.Tags)
	} else {
		out.Tags = NormaliseTags(out.Tags)
	}
	return out
}

// NormaliseTags trims tags, drops blanks, and removes duplicates while
// keeping first-seen order.
func NormaliseTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// SummaryBackend is the part of the backend the state machine drives.
type SummaryBackend interface {
	GetSummary(ctx context.Context, id int64) (*models.Summary, error)
	EditSummary(ctx context.Context, id int64, content models.SummaryContent, user string) error
	ApproveSummary(ctx context.Context, id int64, user string) error
	RejectSummary(ctx context.Context, id int64, user, reason string) error
}

// SummaryStateMachine enforces the review lifecycle of a single summary.
// Every transition re-reads the summary from the backend and checks the
// transition against that state, not against whatever the caller last saw.
type SummaryStateMachine interface {
	Edit(ctx context.Context, id int64, patch models.SummaryPatch) (*models.Summary, error)
	Approve(ctx context.Context, id int64) (*models.Summary, error)
	Reject(ctx context.Context, id int64, reason string) (*models.Summary, error)
	// SaveAndApprove applies patch and then approves. The approve step is
	// not attempted when the edit fails. When only the approve step fails,
	// the edited summary is returned together with the error.
	SaveAndApprove(ctx context.Context, id int64, patch models.SummaryPatch) (*models.Summary, error)
}

type summaryStateMachine struct {
	backend  SummaryBackend
	reviewer string
	events   EventLogger
	log      zerolog.Logger
}

// NewSummaryStateMachine creates a SummaryStateMachine that acts as reviewer.
// events may be nil.
func NewSummaryStateMachine(backend SummaryBackend, reviewer string, events EventLogger, log zerolog.Logger) SummaryStateMachine {
	return &summaryStateMachine{
		backend:  backend,
		reviewer: reviewer,
		events:   events,
		log:      log.With().Str("component", "state-machine").Logger(),
	}
}

func (m *summaryStateMachine) current(ctx context.Context, id int64) (*models.Summary, error) {
	s, err := m.backend.GetSummary(ctx, id)
	if err != nil {
		return nil, remoteErr(fmt.Sprintf("loading summary %d", id), err)
	}
	return s, nil
}

func (m *summaryStateMachine) Edit(ctx context.Context, id int64, patch models.SummaryPatch) (*models.Summary, error) {
	if err := ValidatePatch(patch); err != nil {
		return nil, fmt.Errorf("editing summary %d: %w", id, err)
	}

	cur, err := m.current(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(cur.Status, ActionEdit)
	if err != nil {
		return nil, fmt.Errorf("editing summary %d: %w", id, err)
	}

	merged := MergePatch(cur.EffectiveContent(), patch)
	if err := m.backend.EditSummary(ctx, id, merged, m.reviewer); err != nil {
		return nil, remoteErr(fmt.Sprintf("editing summary %d", id), err)
	}

	out := cur.Clone()
	out.EditedSummary = &merged
	out.Status = next

	m.log.Debug().Int64("summary_id", id).Str("from", string(cur.Status)).Msg("summary edited")
	logEvent(m.events, "summary.edited", map[string]any{
		"summary_id": id,
		"thread_id":  cur.ThreadID,
		"user":       m.reviewer,
		"priority":   string(merged.Priority),
	})
	return out, nil
}

func (m *summaryStateMachine) Approve(ctx context.Context, id int64) (*models.Summary, error) {
	cur, err := m.current(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(cur.Status, ActionApprove)
	if err != nil {
		return nil, fmt.Errorf("approving summary %d: %w", id, err)
	}

	if err := m.backend.ApproveSummary(ctx, id, m.reviewer); err != nil {
		return nil, remoteErr(fmt.Sprintf("approving summary %d", id), err)
	}

	out := cur.Clone()
	out.Status = next
	reviewer := m.reviewer
	out.ApprovedBy = &reviewer

	m.log.Debug().Int64("summary_id", id).Str("from", string(cur.Status)).Msg("summary approved")
	logEvent(m.events, "summary.approved", map[string]any{
		"summary_id": id,
		"thread_id":  cur.ThreadID,
		"user":       m.reviewer,
		"was_edited": cur.Status == models.SummaryEdited,
	})
	return out, nil
}

func (m *summaryStateMachine) Reject(ctx context.Context, id int64, reason string) (*models.Summary, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("rejecting summary %d: %w: a rejection reason is required", id, ErrInvalidTransition)
	}

	cur, err := m.current(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(cur.Status, ActionReject)
	if err != nil {
		return nil, fmt.Errorf("rejecting summary %d: %w", id, err)
	}

	if err := m.backend.RejectSummary(ctx, id, m.reviewer, reason); err != nil {
		return nil, remoteErr(fmt.Sprintf("rejecting summary %d", id), err)
	}

	out := cur.Clone()
	out.Status = next

	m.log.Debug().Int64("summary_id", id).Str("from", string(cur.Status)).Msg("summary rejected")
	logEvent(m.events, "summary.rejected", map[string]any{
		"summary_id": id,
		"thread_id":  cur.ThreadID,
		"user":       m.reviewer,
		"reason":     reason,
	})
	return out, nil
}

func (m *summaryStateMachine) SaveAndApprove(ctx context.Context, id int64, patch models.SummaryPatch) (*models.Summary, error) {
	edited, err := m.Edit(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	approved, err := m.Approve(ctx, id)
	if err != nil {
		return edited, err
	}
	return approved, nil
}
