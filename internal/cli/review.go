package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/thread-review/internal/core"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

// consoleMode is what keystrokes currently mean.
type consoleMode int

const (
	modeBrowse consoleMode = iota
	modeReject
	modeEdit
	modeConfirmDelete
)

const tickInterval = 250 * time.Millisecond

type reviewModel struct {
	orch *core.ReviewOrchestrator

	state     core.ViewState
	notice    string
	noticeErr bool

	cursor int
	width  int
	height int

	mode  consoleMode
	input string

	busy        bool
	cancelBatch context.CancelFunc
}

// actionDoneMsg reports that an orchestrator call finished. The model
// re-reads view state afterwards; the orchestrator has already routed any
// error to the notification sink.
type actionDoneMsg struct {
	err error
}

type batchDoneMsg struct {
	report core.BatchReport[string]
	err    error
}

type tickMsg time.Time

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Underline(true).Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	modalStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("238"))

	statusPending  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusEdited   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	statusApproved = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusRejected = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	priorityUrgent = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	priorityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	priorityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	priorityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	noticeOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	noticeError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Italic(true)
	barFilled   = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	barEmpty    = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newReviewModel(orch *core.ReviewOrchestrator) reviewModel {
	return reviewModel{
		orch:  orch,
		state: orch.Snapshot(),
	}
}

func (m reviewModel) Init() tea.Cmd {
	return tea.Batch(m.run(m.orch.Load), tick())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// run performs fn off the UI loop.
func (m reviewModel) run(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{err: fn(context.Background())}
	}
}

// sync re-reads view state and the current notification.
func (m *reviewModel) sync() {
	m.state = m.orch.Snapshot()
	if n, ok := m.orch.Notification(); ok {
		m.notice = n.Message
		m.noticeErr = n.Kind == core.NotifyError
	} else {
		m.notice = ""
		m.noticeErr = false
	}
	if last := m.itemCount() - 1; m.cursor > last {
		m.cursor = last
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case actionDoneMsg:
		m.busy = false
		m.sync()
		return m, nil

	case batchDoneMsg:
		if m.cancelBatch != nil {
			m.cancelBatch()
			m.cancelBatch = nil
		}
		m.sync()
		return m, nil

	case tickMsg:
		m.sync()
		return m, tick()
	}

	return m, nil
}

func (m reviewModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.cancelBatch != nil {
			m.cancelBatch()
		}
		return m, tea.Quit
	case "esc":
		if m.state.Modal != core.ModalNone {
			m.orch.CloseModal()
			m.sync()
			return m, nil
		}
		if m.cancelBatch != nil {
			m.cancelBatch()
		}
		return m, tea.Quit
	case "tab":
		return m.switchView(1)
	case "shift+tab":
		return m.switchView(-1)
	case "1", "2", "3", "4":
		return m.gotoView(core.Views[int(msg.String()[0]-'1')])
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < m.itemCount()-1 {
			m.cursor++
		}
		return m, nil
	case "r":
		m.busy = true
		return m, m.run(m.orch.Load)
	case "enter":
		return m.openSelected()
	case "s":
		id, ok := m.selectedThreadID()
		if !ok {
			return m, nil
		}
		m.busy = true
		return m, m.run(func(ctx context.Context) error {
			_, err := m.orch.SummarizeThread(ctx, id)
			return err
		})
	case "b":
		if m.cancelBatch != nil {
			return m, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelBatch = cancel
		orch := m.orch
		return m, func() tea.Msg {
			report, err := orch.ProcessAllThreads(ctx, nil)
			return batchDoneMsg{report: report, err: err}
		}
	case "c":
		if m.cancelBatch != nil {
			m.cancelBatch()
		}
		return m, nil
	case "a":
		id, ok := m.selectedSummaryID()
		if !ok {
			return m, nil
		}
		m.busy = true
		return m, m.run(func(ctx context.Context) error {
			_, err := m.orch.Approve(ctx, id)
			return err
		})
	case "x":
		if _, ok := m.selectedSummaryID(); ok {
			m.mode = modeReject
			m.input = ""
		}
		return m, nil
	case "e":
		if s, ok := m.selectedSummary(); ok {
			m.mode = modeEdit
			m.input = s.EffectiveContent().IssueSummary
		}
		return m, nil
	case "p":
		s, ok := m.selectedSummary()
		if !ok {
			return m, nil
		}
		next := nextPriority(s.EffectiveContent().Priority)
		m.busy = true
		return m, m.run(func(ctx context.Context) error {
			_, err := m.orch.SaveEdits(ctx, s.ID, models.SummaryPatch{Priority: &next}, false)
			return err
		})
	case "w":
		id, ok := m.selectedSummaryID()
		if !ok {
			return m, nil
		}
		m.busy = true
		return m, m.run(func(ctx context.Context) error {
			_, err := m.orch.Export(ctx, id)
			return err
		})
	case "d":
		if _, ok := m.selectedThreadID(); ok {
			m.mode = modeConfirmDelete
		}
		return m, nil
	}
	return m, nil
}

func (m reviewModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mode := m.mode
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.input = ""
		return m, nil
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return m, nil
	case tea.KeySpace:
		m.input += " "
		return m, nil
	case tea.KeyRunes:
		if mode == modeConfirmDelete {
			m.mode = modeBrowse
			if strings.EqualFold(string(msg.Runes), "y") {
				id, _ := m.selectedThreadID()
				m.busy = true
				return m, m.run(func(ctx context.Context) error {
					return m.orch.DeleteThread(ctx, id)
				})
			}
			return m, nil
		}
		m.input += string(msg.Runes)
		return m, nil
	case tea.KeyEnter, tea.KeyCtrlA:
		// ctrl+a is save-and-approve, which only edit mode offers.
		if msg.Type == tea.KeyCtrlA && mode != modeEdit {
			return m, nil
		}
		text := m.input
		m.mode = modeBrowse
		m.input = ""
		switch mode {
		case modeReject:
			id, ok := m.selectedSummaryID()
			if !ok {
				return m, nil
			}
			m.busy = true
			return m, m.run(func(ctx context.Context) error {
				_, err := m.orch.Reject(ctx, id, text)
				return err
			})
		case modeEdit:
			id, ok := m.selectedSummaryID()
			if !ok {
				return m, nil
			}
			approve := msg.Type == tea.KeyCtrlA
			m.busy = true
			return m, m.run(func(ctx context.Context) error {
				_, err := m.orch.SaveEdits(ctx, id, models.SummaryPatch{IssueSummary: &text}, approve)
				return err
			})
		}
	}
	return m, nil
}

func (m reviewModel) switchView(step int) (tea.Model, tea.Cmd) {
	i := slices.Index(core.Views, m.state.View)
	n := len(core.Views)
	return m.gotoView(core.Views[((i+step)%n+n)%n])
}

func (m reviewModel) gotoView(v core.View) (tea.Model, tea.Cmd) {
	m.cursor = 0
	m.state.View = v
	m.busy = true
	return m, m.run(func(ctx context.Context) error {
		return m.orch.SetView(ctx, v)
	})
}

func (m reviewModel) openSelected() (tea.Model, tea.Cmd) {
	switch m.state.View {
	case core.ViewThreads:
		id, ok := m.selectedThreadID()
		if !ok {
			return m, nil
		}
		m.busy = true
		return m, m.run(func(ctx context.Context) error {
			_, err := m.orch.OpenThread(ctx, id)
			return err
		})
	case core.ViewReview, core.ViewApproved:
		id, ok := m.selectedSummaryID()
		if !ok {
			return m, nil
		}
		m.busy = true
		return m, m.run(func(ctx context.Context) error {
			_, err := m.orch.OpenSummary(ctx, id)
			return err
		})
	}
	return m, nil
}

func (m reviewModel) itemCount() int {
	switch m.state.View {
	case core.ViewThreads:
		return len(m.state.Threads)
	case core.ViewReview, core.ViewApproved:
		return len(m.state.Summaries)
	}
	return 0
}

func (m reviewModel) selectedSummary() (*models.Summary, bool) {
	if m.state.Modal == core.ModalSummary && m.state.SelectedSummary != nil {
		return m.state.SelectedSummary, true
	}
	if m.state.Modal != core.ModalNone {
		return nil, false
	}
	if m.state.View != core.ViewReview && m.state.View != core.ViewApproved {
		return nil, false
	}
	if m.cursor < 0 || m.cursor >= len(m.state.Summaries) {
		return nil, false
	}
	return &m.state.Summaries[m.cursor], true
}

func (m reviewModel) selectedSummaryID() (int64, bool) {
	s, ok := m.selectedSummary()
	if !ok {
		return 0, false
	}
	return s.ID, true
}

func (m reviewModel) selectedThreadID() (string, bool) {
	if m.state.Modal == core.ModalThread && m.state.SelectedThread != nil {
		return m.state.SelectedThread.ThreadID, true
	}
	if m.state.Modal != core.ModalNone || m.state.View != core.ViewThreads {
		return "", false
	}
	if m.cursor < 0 || m.cursor >= len(m.state.Threads) {
		return "", false
	}
	return m.state.Threads[m.cursor].ThreadID, true
}

func nextPriority(p models.Priority) models.Priority {
	i := slices.Index(models.Priorities, p)
	return models.Priorities[(i+1)%len(models.Priorities)]
}

func (m reviewModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(" trv review "))
	b.WriteString("  ")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	width := m.width - 4
	if width < 30 {
		width = 30
	}

	var body string
	switch m.state.Modal {
	case core.ModalThread:
		body = modalStyle.Width(width).Render(renderThreadPanel(m.state.SelectedThread))
	case core.ModalSummary:
		body = modalStyle.Width(width).Render(renderSummaryPanel(m.state.SelectedSummary))
	default:
		body = panelStyle.Width(width).Render(m.renderView())
	}
	b.WriteString(body)
	b.WriteString("\n")

	if p := m.state.Progress; p.Running || m.cancelBatch != nil {
		b.WriteString("\n  ")
		b.WriteString(progressBar(p.Done, p.Total, 30))
		b.WriteString("\n")
	}

	if m.notice != "" {
		style := noticeOK
		if m.noticeErr {
			style = noticeError
		}
		b.WriteString("\n  " + style.Render(m.notice) + "\n")
	}
	if m.state.Stale != 0 {
		b.WriteString("\n  " + staleStyle.Render("Some views could not be refreshed and may be out of date (r to retry).") + "\n")
	}

	switch m.mode {
	case modeReject:
		b.WriteString("\n  Reject reason: " + m.input + "_\n")
	case modeEdit:
		b.WriteString("\n  Issue summary: " + m.input + "_\n")
	case modeConfirmDelete:
		id, _ := m.selectedThreadID()
		b.WriteString(fmt.Sprintf("\n  Delete thread %s? (y/n)\n", id))
	}

	b.WriteString("\n" + helpStyle.Render(m.helpLine()))
	return b.String()
}

func (m reviewModel) renderTabs() string {
	labels := map[core.View]string{
		core.ViewDashboard: "1 Dashboard",
		core.ViewThreads:   "2 Threads",
		core.ViewReview:    "3 Review",
		core.ViewApproved:  "4 Approved",
	}
	tabs := make([]string, 0, len(core.Views))
	for _, v := range core.Views {
		style := tabStyle
		if v == m.state.View {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(labels[v]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m reviewModel) renderView() string {
	switch m.state.View {
	case core.ViewThreads:
		return m.renderThreads()
	case core.ViewReview:
		return m.renderSummaries("Awaiting review")
	case core.ViewApproved:
		return m.renderSummaries("Approved")
	default:
		return m.renderDashboard()
	}
}

func (m reviewModel) renderDashboard() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Dashboard"))
	b.WriteString("\n")

	a := m.state.Analytics
	if a == nil {
		b.WriteString("  No analytics loaded.")
		return b.String()
	}
	lines := []struct {
		label string
		value string
	}{
		{"Threads", fmt.Sprint(a.TotalThreads)},
		{"Summaries", fmt.Sprint(a.TotalSummaries)},
		{"Pending review", statusPending.Render(fmt.Sprint(a.PendingSummaries))},
		{"Approved", statusApproved.Render(fmt.Sprint(a.ApprovedSummaries))},
		{"Approval rate", fmt.Sprintf("%.2f%%", a.ApprovalRate)},
	}
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %-16s %s\n", l.label, l.value))
	}
	return b.String()
}

func (m reviewModel) renderThreads() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Threads"))
	b.WriteString("\n")

	if len(m.state.Threads) == 0 {
		b.WriteString("  No threads. Import some with 'trv import <file>'.")
		return b.String()
	}
	for i, t := range m.state.Threads {
		line := fmt.Sprintf("  %-14s %-9s %2d msgs  %s", t.ThreadID, t.InitiatedBy, len(t.Messages), truncate(t.Subject, 50))
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m reviewModel) renderSummaries(title string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	if len(m.state.Summaries) == 0 {
		b.WriteString("  Nothing here.")
		return b.String()
	}
	for i := range m.state.Summaries {
		s := &m.state.Summaries[i]
		c := s.EffectiveContent()
		line := fmt.Sprintf("  #%-5d %-14s %s %s  %s",
			s.ID, s.ThreadID,
			styleForSummaryStatus(s.Status).Render(fmt.Sprintf("%-8s", s.Status)),
			styleForPriority(c.Priority).Render(fmt.Sprintf("%-6s", c.Priority)),
			truncate(c.IssueSummary, 50))
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func renderThreadPanel(t *models.Thread) string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(t.Subject))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s  opened by %s", t.ThreadID, t.InitiatedBy))
	if t.OrderID != "" {
		b.WriteString(fmt.Sprintf("  order %s (%s)", t.OrderID, t.Product))
	}
	b.WriteString("\n")
	for _, msg := range t.Messages {
		b.WriteString(fmt.Sprintf("\n  [%s] %s\n  %s\n", msg.Sender, msg.Timestamp, strings.TrimSpace(msg.Body)))
	}
	return b.String()
}

func renderSummaryPanel(s *models.Summary) string {
	if s == nil {
		return ""
	}
	c := s.EffectiveContent()
	var b strings.Builder
	title := fmt.Sprintf("Summary #%d for %s", s.ID, s.ThreadID)
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	b.WriteString("  Status:     " + styleForSummaryStatus(s.Status).Render(string(s.Status)))
	if s.EditedSummary != nil {
		b.WriteString("  (edited)")
	}
	b.WriteString("\n")
	b.WriteString("  Priority:   " + styleForPriority(c.Priority).Render(string(c.Priority)) + "\n")
	b.WriteString(fmt.Sprintf("  Resolution: %s\n", c.ResolutionStatus))
	b.WriteString(fmt.Sprintf("  Sentiment:  %s\n", c.Sentiment))
	if len(c.Tags) > 0 {
		b.WriteString(fmt.Sprintf("  Tags:       %s\n", strings.Join(c.Tags, ", ")))
	}
	b.WriteString(fmt.Sprintf("\n  Issue:\n  %s\n", c.IssueSummary))
	b.WriteString(fmt.Sprintf("\n  Next steps:\n  %s\n", c.NextSteps))
	if len(c.KeyActions) > 0 {
		b.WriteString("\n  Key actions:\n")
		for _, a := range c.KeyActions {
			b.WriteString("    - " + a + "\n")
		}
	}
	if s.CRMContext != nil {
		b.WriteString(fmt.Sprintf("\n  Order %s: %s\n", s.CRMContext.OrderID, s.CRMContext.Product))
	}
	return b.String()
}

func (m reviewModel) helpLine() string {
	switch m.mode {
	case modeReject, modeEdit:
		if m.mode == modeEdit {
			return "enter: save | ctrl+a: save and approve | esc: cancel"
		}
		return "enter: reject | esc: cancel"
	case modeConfirmDelete:
		return "y: delete | any other key: keep"
	}
	switch {
	case m.state.Modal == core.ModalSummary:
		return "a: approve | x: reject | e: edit issue | p: cycle priority | w: export | esc: close"
	case m.state.Modal == core.ModalThread:
		return "s: summarize | d: delete | esc: close"
	case m.state.View == core.ViewThreads:
		return "tab/1-4: view | j/k: move | enter: open | s: summarize | b: summarize all | d: delete | r: refresh | q: quit"
	case m.state.View == core.ViewReview:
		return "tab/1-4: view | j/k: move | enter: open | a: approve | x: reject | e: edit | p: priority | r: refresh | q: quit"
	case m.state.View == core.ViewApproved:
		return "tab/1-4: view | j/k: move | enter: open | w: export | r: refresh | q: quit"
	}
	if m.cancelBatch != nil {
		return "c: cancel batch | tab/1-4: view | q: quit"
	}
	return "tab/1-4: view | b: summarize all | r: refresh | q: quit"
}

// progressBar renders done/total with lipgloss colours.
func progressBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	return barFilled.Render(strings.Repeat("█", filled)) +
		barEmpty.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %d/%d", done, total)
}

func styleForSummaryStatus(s models.SummaryStatus) lipgloss.Style {
	switch s {
	case models.SummaryPending:
		return statusPending
	case models.SummaryEdited:
		return statusEdited
	case models.SummaryApproved:
		return statusApproved
	case models.SummaryRejected:
		return statusRejected
	default:
		return lipgloss.NewStyle()
	}
}

func styleForPriority(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityUrgent:
		return priorityUrgent
	case models.PriorityHigh:
		return priorityHigh
	case models.PriorityMedium:
		return priorityMedium
	case models.PriorityLow:
		return priorityLow
	default:
		return lipgloss.NewStyle()
	}
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactive review console",
	Long: `Launch the interactive review console.

Switch between the dashboard, threads, review queue, and approved lists with
Tab or 1-4. Open an item with Enter, then approve (a), reject (x), edit (e),
cycle priority (p), or export (w). Summarize one thread with s or every
thread with b; c cancels a running batch. Quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireReview(); err != nil {
			return err
		}
		p := tea.NewProgram(newReviewModel(Review), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
