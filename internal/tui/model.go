package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/domain"
)

// Workspace is the survey surface the model drives.
type Workspace interface {
	ProjectID() string
	CheckSurvey(context.Context) (app.SurveyPrompt, error)
	Submit(context.Context, *domain.SurveySession) (domain.SubmissionResult, error)
	Skip(context.Context, *domain.SurveySession)
}

// siteStatusOption is one row of the overview question.
type siteStatusOption struct {
	status domain.SiteStatus
	label  string
	hint   string
}

var siteStatusOptions = []siteStatusOption{
	{domain.SiteStatusNormal, "Normal", "all tasks progressed"},
	{domain.SiteStatusDelayed, "Delayed", "pick the tasks that did not advance"},
	{domain.SiteStatusClosed, "Closed", "nothing happened on site today"},
}

// Model is the daily survey wizard.
type Model struct {
	ws         Workspace
	ctx        context.Context
	now        func() time.Time
	riskSource RiskSource

	keys         keyMap
	help         help.Model
	otherInput   textinput.Model
	editingOther bool
	// otherTarget is the task whose free text is edited; empty means the closed-site reason.
	otherTarget string
	markdown    markdownRenderer

	width  int
	height int
	ready  bool

	checked bool
	prompt  app.SurveyPrompt
	session *domain.SurveySession
	cursor  int

	submitting bool
	result     *domain.SubmissionResult
	skipped    bool

	risk    *domain.RiskSummary
	riskErr error

	status string
	err    error
}

type promptLoadedMsg struct {
	prompt app.SurveyPrompt
	err    error
}

type submittedMsg struct {
	result domain.SubmissionResult
	err    error
}

type skippedMsg struct{}

type riskLoadedMsg struct {
	summary domain.RiskSummary
	err     error
}

// NewModel constructs the survey wizard for one workspace.
func NewModel(ws Workspace, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	otherInput := textinput.New()
	otherInput.Prompt = "other: "
	otherInput.Placeholder = "describe the reason"
	otherInput.CharLimit = 200
	m := Model{
		ws:         ws,
		ctx:        context.Background(),
		now:        time.Now,
		keys:       newKeyMap(),
		help:       h,
		otherInput: otherInput,
		status:     "checking today's survey...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init runs the once-per-launch eligibility check.
func (m Model) Init() tea.Cmd {
	return m.checkSurvey
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case promptLoadedMsg:
		m.checked = true
		if msg.err != nil {
			m.err = msg.err
			m.status = "survey check failed"
			return m, m.loadRisk()
		}
		m.prompt = msg.prompt
		m.session = msg.prompt.Session
		m.cursor = 0
		switch {
		case msg.prompt.Show:
			m.status = "today's survey is due"
		case msg.prompt.NoActiveTasks:
			m.status = "no active tasks"
		default:
			m.status = "today's survey is already addressed"
		}
		return m, m.loadRisk()

	case submittedMsg:
		m.submitting = false
		if msg.err != nil {
			if errors.Is(msg.err, app.ErrAlreadySubmittedToday) {
				m.session = nil
				m.status = "today's survey was already submitted"
				return m, nil
			}
			m.cursor = 0
			m.status = "submit failed: " + msg.err.Error()
			return m, nil
		}
		result := msg.result
		m.result = &result
		m.status = "survey submitted"
		return m, m.loadRisk()

	case skippedMsg:
		m.skipped = true
		m.status = "survey skipped for today"
		return m, nil

	case riskLoadedMsg:
		if msg.err != nil {
			m.risk = &domain.RiskSummary{}
			m.riskErr = msg.err
			return m, nil
		}
		summary := msg.summary
		m.risk = &summary
		m.riskErr = nil
		return m, nil

	case tea.KeyPressMsg:
		if m.editingOther {
			return m.handleOtherInputKey(msg)
		}
		return m.handleKey(msg)
	}

	if m.editingOther {
		var cmd tea.Cmd
		m.otherInput, cmd = m.otherInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) checkSurvey() tea.Msg {
	if m.ws == nil {
		return promptLoadedMsg{err: errors.New("no workspace configured")}
	}
	prompt, err := m.ws.CheckSurvey(m.ctx)
	return promptLoadedMsg{prompt: prompt, err: err}
}

func (m Model) loadRisk() tea.Cmd {
	if m.riskSource == nil {
		return nil
	}
	source, ctx := m.riskSource, m.ctx
	return func() tea.Msg {
		summary, err := source(ctx)
		return riskLoadedMsg{summary: summary, err: err}
	}
}

// handleKey routes key presses outside the free-text editor.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.refreshRisk):
		if m.riskSource == nil {
			return m, nil
		}
		m.status = "refreshing risk..."
		return m, m.loadRisk()
	}
	if m.submitting || m.session == nil || m.session.Step().Terminal() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.skip):
		return m.skipSurvey()
	case key.Matches(msg, m.keys.submit) && m.session.Step() != domain.StepOverview:
		return m.trySubmit()
	case key.Matches(msg, m.keys.back) && m.session.Step() != domain.StepOverview:
		status := m.session.SiteStatus()
		if err := m.session.Back(); err != nil {
			m.status = describeError(err)
			return m, nil
		}
		m.cursor = max(0, slices.IndexFunc(siteStatusOptions, func(o siteStatusOption) bool { return o.status == status }))
		m.status = ""
		return m, nil
	}

	switch m.session.Step() {
	case domain.StepOverview:
		return m.handleOverviewKey(msg)
	case domain.StepSiteClosedDetail:
		return m.handleClosedKey(msg)
	case domain.StepTaskDelayDetail:
		return m.handleDelayKey(msg)
	}
	return m, nil
}

func (m Model) handleOverviewKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.moveUp):
		m.cursor = wrapIndex(m.cursor, -1, len(siteStatusOptions))
	case key.Matches(msg, m.keys.moveDown):
		m.cursor = wrapIndex(m.cursor, 1, len(siteStatusOptions))
	case key.Matches(msg, m.keys.choose):
		return m.chooseSiteStatus(siteStatusOptions[m.cursor].status)
	}
	return m, nil
}

func (m Model) chooseSiteStatus(status domain.SiteStatus) (tea.Model, tea.Cmd) {
	if err := m.session.SelectSiteStatus(status, m.now()); err != nil {
		m.status = describeError(err)
		return m, nil
	}
	m.status = ""
	m.cursor = 0
	switch m.session.Step() {
	case domain.StepSubmitted:
		return m.startSubmit()
	case domain.StepSiteClosedDetail:
		reason, _ := m.session.SiteClosedReason()
		m.cursor = max(0, slices.Index(domain.SiteClosedReasons, reason))
	}
	return m, nil
}

func (m Model) handleClosedKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	reasons := domain.SiteClosedReasons
	switch {
	case key.Matches(msg, m.keys.moveUp):
		m.cursor = wrapIndex(m.cursor, -1, len(reasons))
	case key.Matches(msg, m.keys.moveDown):
		m.cursor = wrapIndex(m.cursor, 1, len(reasons))
	case key.Matches(msg, m.keys.choose):
		reason := reasons[m.cursor]
		_, other := m.session.SiteClosedReason()
		if err := m.session.SetSiteClosedReason(reason, other); err != nil {
			m.status = describeError(err)
			return m, nil
		}
		m.status = ""
		if reason == domain.ReasonOther {
			return m.startOtherInput("")
		}
	case key.Matches(msg, m.keys.editOther):
		if reason, _ := m.session.SiteClosedReason(); reason == domain.ReasonOther {
			return m.startOtherInput("")
		}
	}
	return m, nil
}

func (m Model) handleDelayKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	tasks := m.session.Tasks()
	if len(tasks) == 0 {
		return m, nil
	}
	m.cursor = min(m.cursor, len(tasks)-1)
	task := tasks[m.cursor]
	switch {
	case key.Matches(msg, m.keys.moveUp):
		m.cursor = wrapIndex(m.cursor, -1, len(tasks))
	case key.Matches(msg, m.keys.moveDown):
		m.cursor = wrapIndex(m.cursor, 1, len(tasks))
	case key.Matches(msg, m.keys.toggleTask), key.Matches(msg, m.keys.choose):
		productive := m.session.TaskUpdate(task.ID).Status == domain.NonProductive
		if err := m.session.ToggleTask(task.ID, productive); err != nil {
			m.status = describeError(err)
		}
	case key.Matches(msg, m.keys.reasonPrev):
		return m.cycleDelayReason(task.ID, -1)
	case key.Matches(msg, m.keys.reasonNext):
		return m.cycleDelayReason(task.ID, 1)
	case key.Matches(msg, m.keys.editOther):
		if m.session.TaskUpdate(task.ID).DelayReason == domain.ReasonOther {
			return m.startOtherInput(task.ID)
		}
	}
	return m, nil
}

// cycleDelayReason steps through the delay reasons, which also marks the task non-productive.
func (m Model) cycleDelayReason(taskID string, delta int) (tea.Model, tea.Cmd) {
	reasons := domain.DelayReasons
	current := m.session.TaskUpdate(taskID)
	next := 0
	if idx := slices.Index(reasons, current.DelayReason); idx >= 0 {
		next = wrapIndex(idx, delta, len(reasons))
	} else if delta < 0 {
		next = len(reasons) - 1
	}
	if err := m.session.SetDelayReason(taskID, reasons[next], current.DelayReasonOther); err != nil {
		m.status = describeError(err)
		return m, nil
	}
	m.status = ""
	return m, nil
}

func (m Model) startOtherInput(target string) (tea.Model, tea.Cmd) {
	current := ""
	if target == "" {
		_, current = m.session.SiteClosedReason()
	} else {
		current = m.session.TaskUpdate(target).DelayReasonOther
	}
	m.editingOther = true
	m.otherTarget = target
	m.otherInput.SetValue(current)
	return m, m.otherInput.Focus()
}

func (m *Model) stopOtherInput() {
	m.editingOther = false
	m.otherTarget = ""
	m.otherInput.Blur()
	m.otherInput.SetValue("")
}

func (m Model) handleOtherInputKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.stopOtherInput()
		return m, nil
	case "enter":
		value := m.otherInput.Value()
		var err error
		if m.otherTarget == "" {
			err = m.session.SetSiteClosedReason(domain.ReasonOther, value)
		} else {
			err = m.session.SetDelayReason(m.otherTarget, domain.ReasonOther, value)
		}
		m.stopOtherInput()
		if err != nil {
			m.status = describeError(err)
		} else {
			m.status = ""
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.otherInput, cmd = m.otherInput.Update(msg)
	return m, cmd
}

// trySubmit runs the submit guard; failures keep the wizard on its step.
func (m Model) trySubmit() (tea.Model, tea.Cmd) {
	if _, err := m.session.Submit(m.now()); err != nil {
		m.status = describeError(err)
		return m, nil
	}
	return m.startSubmit()
}

func (m Model) startSubmit() (tea.Model, tea.Cmd) {
	m.submitting = true
	m.status = "submitting survey..."
	ws, ctx, session := m.ws, m.ctx, m.session
	return m, func() tea.Msg {
		result, err := ws.Submit(ctx, session)
		return submittedMsg{result: result, err: err}
	}
}

func (m Model) skipSurvey() (tea.Model, tea.Cmd) {
	if err := m.session.Skip(); err != nil {
		m.status = describeError(err)
		return m, nil
	}
	m.status = "skipping..."
	ws, ctx := m.ws, m.ctx
	return m, func() tea.Msg {
		ws.Skip(ctx, nil)
		return skippedMsg{}
	}
}

// View renders the wizard.
func (m Model) View() tea.View {
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	mutedStyle := lipgloss.NewStyle().Foreground(muted)
	statusStyle := lipgloss.NewStyle().Foreground(dim)
	selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)

	projectID := ""
	if m.ws != nil {
		projectID = m.ws.ProjectID()
	}
	sections := []string{
		titleStyle.Render("sitepulse") + "  " + mutedStyle.Render("daily site survey · "+projectID),
		"",
		m.bodyView(selectedStyle, mutedStyle),
	}
	if risk := m.riskView(mutedStyle); risk != "" {
		sections = append(sections, "", risk)
	}
	if strings.TrimSpace(m.status) != "" {
		sections = append(sections, "", statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	view := tea.NewView(content + "\n" + helpLine)
	view.AltScreen = true
	return view
}

func (m Model) bodyView(selected, muted lipgloss.Style) string {
	switch {
	case m.err != nil:
		return "error: " + m.err.Error() + "\n\npress q to quit"
	case !m.checked:
		return "checking today's survey..."
	case m.submitting:
		return "submitting survey..."
	case m.result != nil:
		var tasks []domain.Task
		if m.session != nil {
			tasks = m.session.Tasks()
		}
		return m.markdown.render(submissionMarkdown(*m.result, tasks), m.width-2)
	case m.skipped:
		return "Survey skipped for today. It will be offered again tomorrow."
	case m.session == nil:
		if m.prompt.NoActiveTasks {
			return "No active tasks need a report today."
		}
		return "Today's survey is already addressed."
	}

	var lines []string
	switch m.session.Step() {
	case domain.StepOverview:
		lines = append(lines, "How is the site today?", "")
		for i, opt := range siteStatusOptions {
			lines = append(lines, cursorLine(i == m.cursor, opt.label, selected)+"  "+muted.Render(opt.hint))
		}
	case domain.StepSiteClosedDetail:
		reason, other := m.session.SiteClosedReason()
		lines = append(lines, "Why is the site closed?", "")
		for i, candidate := range domain.SiteClosedReasons {
			label := candidate
			if candidate == reason {
				label = "● " + label
			} else {
				label = "○ " + label
			}
			lines = append(lines, cursorLine(i == m.cursor, label, selected))
		}
		if reason == domain.ReasonOther {
			lines = append(lines, "", m.otherLine(other, muted))
		}
	case domain.StepTaskDelayDetail:
		lines = append(lines, "Which tasks did not advance today?", "")
		for i, task := range m.session.Tasks() {
			update := m.session.TaskUpdate(task.ID)
			label := "[✓] " + task.DisplayTitle()
			if update.Status == domain.NonProductive {
				label = "[✗] " + task.DisplayTitle()
				switch update.DelayReason {
				case "":
					label += "  " + muted.Render("choose a reason with h/l")
				case domain.ReasonOther:
					label += " · " + m.otherLine(update.DelayReasonOther, muted)
				default:
					label += " · " + update.DelayReason
				}
			}
			lines = append(lines, cursorLine(i == m.cursor, label, selected))
		}
	default:
		lines = append(lines, fmt.Sprintf("survey %s", m.session.Step()))
	}
	return strings.Join(lines, "\n")
}

func (m Model) otherLine(value string, muted lipgloss.Style) string {
	if m.editingOther {
		return m.otherInput.View()
	}
	if strings.TrimSpace(value) == "" {
		return muted.Render("Other (press o to describe)")
	}
	return "Other: " + value
}

// riskView renders the dashboard; a failed refresh shows zero counts and a muted note.
func (m Model) riskView(muted lipgloss.Style) string {
	if m.risk == nil {
		return ""
	}
	out := m.markdown.render(riskMarkdown(*m.risk), m.width-2)
	if m.riskErr != nil {
		out += "\n" + muted.Render("risk refresh failed: "+m.riskErr.Error())
	}
	return out
}

func cursorLine(active bool, label string, selected lipgloss.Style) string {
	if active {
		return selected.Render("› " + label)
	}
	return "  " + label
}

// describeError flattens validation failures into one status line.
func describeError(err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		msgs := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			msgs = append(msgs, f.Message)
		}
		return strings.Join(msgs, "; ")
	}
	return err.Error()
}

// wrapIndex moves current by delta within [0, total).
func wrapIndex(current, delta, total int) int {
	if total <= 0 {
		return 0
	}
	return ((current+delta)%total + total) % total
}
