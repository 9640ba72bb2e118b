package models

import (
	"encoding/json"
	"fmt"
	"slices"
)

// SummaryStatus is the review lifecycle state of a summary.
type SummaryStatus string

const (
	SummaryPending  SummaryStatus = "pending"
	SummaryEdited   SummaryStatus = "edited"
	SummaryApproved SummaryStatus = "approved"
	SummaryRejected SummaryStatus = "rejected"
)

// IsTerminal reports whether no further review transition is allowed.
func (s SummaryStatus) IsTerminal() bool {
	return s == SummaryApproved || s == SummaryRejected
}

// Valid reports whether s is a known status.
func (s SummaryStatus) Valid() bool {
	switch s {
	case SummaryPending, SummaryEdited, SummaryApproved, SummaryRejected:
		return true
	}
	return false
}

// Priority is the urgency a reviewer assigns to a thread.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists the allowed priorities in ascending urgency.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Valid reports whether p is one of Priorities.
func (p Priority) Valid() bool { return slices.Contains(Priorities, p) }

// ResolutionStatus is where the customer issue stands.
type ResolutionStatus string

const (
	ResolutionPending   ResolutionStatus = "pending"
	ResolutionResolved  ResolutionStatus = "resolved"
	ResolutionEscalated ResolutionStatus = "escalated"
)

// ResolutionStatuses lists the allowed resolution statuses.
var ResolutionStatuses = []ResolutionStatus{ResolutionPending, ResolutionResolved, ResolutionEscalated}

// Valid reports whether r is one of ResolutionStatuses.
func (r ResolutionStatus) Valid() bool { return slices.Contains(ResolutionStatuses, r) }

// Sentiment is the customer's tone across the thread.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentFrustrated Sentiment = "frustrated"
)

// Sentiments lists the allowed sentiments.
var Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative, SentimentFrustrated}

// Valid reports whether s is one of Sentiments.
func (s Sentiment) Valid() bool { return slices.Contains(Sentiments, s) }

// SummaryContent is the structured distillation of a thread. The backend
// produces the original; reviewers produce edited versions of it.
type SummaryContent struct {
	IssueSummary     string           `json:"issue_summary" yaml:"issue_summary"`
	NextSteps        string           `json:"next_steps" yaml:"next_steps"`
	KeyActions       []string         `json:"key_actions" yaml:"key_actions"`
	Priority         Priority         `json:"priority" yaml:"priority"`
	ResolutionStatus ResolutionStatus `json:"resolution_status" yaml:"resolution_status"`
	Sentiment        Sentiment        `json:"sentiment" yaml:"sentiment"`
	Tags             []string         `json:"tags" yaml:"tags"`

	// Extra holds keys sent by the backend that are not modelled above
	// (summary_type, for instance). They round-trip untouched.
	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

var contentKeys = []string{
	"issue_summary", "next_steps", "key_actions", "priority",
	"resolution_status", "sentiment", "tags",
}

type contentFields SummaryContent

// MarshalJSON writes the modelled fields plus any preserved extra keys.
func (c SummaryContent) MarshalJSON() ([]byte, error) {
	fields := contentFields(c)
	if fields.KeyActions == nil {
		fields.KeyActions = []string{}
	}
	if fields.Tags == nil {
		fields.Tags = []string{}
	}
	known, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(c.Extra)+len(contentKeys))
	for k, v := range c.Extra {
		merged[k] = v
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the modelled fields and keeps everything else in Extra.
func (c *SummaryContent) UnmarshalJSON(data []byte) error {
	var fields contentFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding summary content: %w", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decoding summary content: %w", err)
	}
	for _, k := range contentKeys {
		delete(all, k)
	}
	*c = SummaryContent(fields)
	c.Extra = nil
	if len(all) > 0 {
		c.Extra = all
	}
	return nil
}

// Clone returns a deep copy so callers can build a working copy without
// aliasing slices or the extra map.
func (c SummaryContent) Clone() SummaryContent {
	out := c
	out.KeyActions = slices.Clone(c.KeyActions)
	out.Tags = slices.Clone(c.Tags)
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// CRMContext is read-only order reference data attached by the backend.
type CRMContext struct {
	OrderID               string `json:"order_id" yaml:"order_id"`
	Product               string `json:"product" yaml:"product"`
	CustomerLifetimeValue string `json:"customer_lifetime_value,omitempty" yaml:"customer_lifetime_value,omitempty"`
	PreviousInteractions  int    `json:"previous_interactions,omitempty" yaml:"previous_interactions,omitempty"`
	OrderValue            string `json:"order_value,omitempty" yaml:"order_value,omitempty"`
}

// Summary is an AI-generated (or reviewer-edited) summary of one thread.
type Summary struct {
	ID              int64           `json:"id" yaml:"id"`
	ThreadID        string          `json:"thread_id" yaml:"thread_id"`
	SummaryType     string          `json:"summary_type" yaml:"summary_type"`
	Status          SummaryStatus   `json:"status" yaml:"status"`
	OriginalSummary SummaryContent  `json:"original_summary" yaml:"original_summary"`
	EditedSummary   *SummaryContent `json:"edited_summary" yaml:"edited_summary"`
	CRMContext      *CRMContext     `json:"crm_context,omitempty" yaml:"crm_context,omitempty"`
	CreatedAt       string          `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ApprovedAt      *string         `json:"approved_at,omitempty" yaml:"approved_at,omitempty"`
	ApprovedBy      *string         `json:"approved_by,omitempty" yaml:"approved_by,omitempty"`
}

// EffectiveContent returns the edited summary when one exists, otherwise the
// original. Nothing outside this method reads OriginalSummary for display.
func (s *Summary) EffectiveContent() SummaryContent {
	if s.EditedSummary != nil {
		return s.EditedSummary.Clone()
	}
	return s.OriginalSummary.Clone()
}

// Clone returns a deep copy of the summary.
func (s *Summary) Clone() *Summary {
	out := *s
	out.OriginalSummary = s.OriginalSummary.Clone()
	if s.EditedSummary != nil {
		edited := s.EditedSummary.Clone()
		out.EditedSummary = &edited
	}
	if s.CRMContext != nil {
		crm := *s.CRMContext
		out.CRMContext = &crm
	}
	return &out
}

// SummaryPatch is a partial edit. Nil fields are left untouched when the
// patch is merged into a working copy.
type SummaryPatch struct {
	IssueSummary     *string           `json:"issue_summary,omitempty"`
	NextSteps        *string           `json:"next_steps,omitempty"`
	KeyActions       *[]string         `json:"key_actions,omitempty"`
	Priority         *Priority         `json:"priority,omitempty"`
	ResolutionStatus *ResolutionStatus `json:"resolution_status,omitempty"`
	Sentiment        *Sentiment        `json:"sentiment,omitempty"`
	Tags             *[]string         `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch touches no field.
func (p SummaryPatch) IsEmpty() bool {
	return p.IssueSummary == nil && p.NextSteps == nil && p.KeyActions == nil &&
		p.Priority == nil && p.ResolutionStatus == nil && p.Sentiment == nil && p.Tags == nil
}
