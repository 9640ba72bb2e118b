package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(alerts []Alert) error
}

// reviewConditions lists alert conditions in the order a reviewer should
// act on them, with the heading each group gets in a message.
var reviewConditions = []struct {
	condition string
	heading   string
}{
	{"batch_failure_rate_high", "Batch failures"},
	{"review_backlog_too_large", "Review backlog"},
	{"review_stale", "Stale reviews"},
	{"rejection_rate_high", "Rejection rate"},
}

// slackNotifier posts review alerts to a Slack incoming webhook.
type slackNotifier struct {
	webhookURL string
	reviewURL  string
	client     *resty.Client
}

// NewSlackNotifier creates a Notifier that posts to webhookURL. When
// reviewURL is set each message links to the review queue.
func NewSlackNotifier(webhookURL, reviewURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		reviewURL:  reviewURL,
		client: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(10 * time.Second),
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts one message covering all alerts. An empty slice sends nothing.
func (s *slackNotifier) Notify(alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	resp, err := s.client.R().
		SetBody(s.buildMessage(alerts)).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (s *slackNotifier) buildMessage(alerts []Alert) slackMessage {
	title := fmt.Sprintf("trv: %d review alert", len(alerts))
	if len(alerts) != 1 {
		title += "s"
	}

	var latest time.Time
	for _, a := range alerts {
		if a.TriggeredAt.After(latest) {
			latest = a.TriggeredAt
		}
	}

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: title}},
		{Type: "context", Elements: []slackText{{
			Type: "mrkdwn",
			Text: "Evaluated " + latest.UTC().Format("2006-01-02 15:04 UTC") + " from the local review log",
		}}},
	}

	for i, g := range groupAlerts(alerts) {
		if i > 0 {
			blocks = append(blocks, slackBlock{Type: "divider"})
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s *%s* (%s)", severityEmoji(g.severity), g.heading, g.severity)
		for _, a := range g.alerts {
			b.WriteString("\n• " + a.Message)
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: b.String()},
		})
	}

	if s.reviewURL != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("<%s|Open the review queue>", s.reviewURL)},
		})
	}

	return slackMessage{Text: title, Blocks: blocks}
}

type alertGroup struct {
	heading  string
	severity AlertSeverity
	alerts   []Alert
}

// groupAlerts buckets alerts by condition in reviewConditions order.
// Unknown conditions come last, each under its own name.
func groupAlerts(alerts []Alert) []alertGroup {
	byCondition := make(map[string][]Alert)
	var unknown []string
	for _, a := range alerts {
		if _, seen := byCondition[a.Condition]; !seen && !isReviewCondition(a.Condition) {
			unknown = append(unknown, a.Condition)
		}
		byCondition[a.Condition] = append(byCondition[a.Condition], a)
	}

	var groups []alertGroup
	add := func(condition, heading string) {
		list := byCondition[condition]
		if len(list) == 0 {
			return
		}
		g := alertGroup{heading: heading, alerts: list}
		for _, a := range list {
			if severityRank(a.Severity) > severityRank(g.severity) {
				g.severity = a.Severity
			}
		}
		groups = append(groups, g)
	}
	for _, c := range reviewConditions {
		add(c.condition, c.heading)
	}
	for _, c := range unknown {
		add(c, c)
	}
	return groups
}

func isReviewCondition(condition string) bool {
	for _, c := range reviewConditions {
		if c.condition == condition {
			return true
		}
	}
	return false
}

func severityRank(severity AlertSeverity) int {
	switch severity {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
