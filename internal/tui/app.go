// internal/tui/app.go
//
// This is the terminal UI for agent-collab. It uses bubbletea, which follows
// The Elm Architecture:
//
// 1. Model: the App struct below
// 2. Update: reacts to keys, controller notifications and finished operations
// 3. View: renders the status bar, the active tab, the input line and the log
//
// Controller operations block on agents, so they run inside tea.Cmds. Streamed
// output and phase changes reach the model through a Bridge.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/agent-collab/internal/artifact"
	"github.com/kingrea/agent-collab/internal/logbook"
	"github.com/kingrea/agent-collab/internal/workflow"
	"github.com/kingrea/agent-collab/internal/workflow/engine"
)

const logPanelLines = 6

// Controller is the part of engine.Controller the UI drives.
type Controller interface {
	Status() engine.Status
	PlanContent() string
	CommentsContent() string
	Refine(ctx context.Context, userText string) (string, error)
	WritePlan(ctx context.Context) (string, error)
	Review(ctx context.Context) (string, error)
	Respond(ctx context.Context) (string, error)
	RunReviewLoop(ctx context.Context) (string, error)
	ExecuteStep(ctx context.Context, stepNumber int, stepContent string) (string, error)
	MarkDone() error
	RecoverContext(ctx context.Context) (string, error)
}

var _ Controller = (*engine.Controller)(nil)

type tab int

const (
	tabConversation tab = iota
	tabPlan
	tabComments
	tabCount
)

func (t tab) String() string {
	switch t {
	case tabPlan:
		return "Plan"
	case tabComments:
		return "Comments"
	default:
		return "Conversation"
	}
}

type inputMode int

const (
	inputNone inputMode = iota
	inputGoal
	inputStep
)

type opFinishedMsg struct {
	op       string
	response string
	err      error
}

type artifactMsg struct{ event artifact.Event }

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	approvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	activeTab     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	inactiveTab   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Padding(0, 1)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the tail of the journey log under the main panel.
func WithLogbook(book *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = book
	}
}

// WithArtifactEvents refreshes the plan and comments tabs whenever the
// watcher reports a change.
func WithArtifactEvents(events <-chan artifact.Event) AppOption {
	return func(a *App) {
		a.artifacts = events
	}
}

// WithContext sets the parent context for operations started from the UI.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// App is the main application model.
type App struct {
	ctx       context.Context
	ctrl      Controller
	bridge    *Bridge
	logbook   *logbook.Logbook
	artifacts <-chan artifact.Event

	keys     keyMap
	help     help.Model
	viewport viewport.Model
	input    textarea.Model
	mode     inputMode

	tab          tab
	conversation strings.Builder
	plan         string
	comments     string
	status       engine.Status

	running  string
	cancel   context.CancelFunc
	nextStep int
	pending  int

	statusMsg string
	err       error
	width     int
	height    int
}

// NewApp creates the UI for ctrl. The bridge must be registered as one of
// the controller's listeners.
func NewApp(ctrl Controller, bridge *Bridge, opts ...AppOption) (*App, error) {
	if ctrl == nil {
		return nil, errors.New("tui: controller is required")
	}
	if bridge == nil {
		return nil, errors.New("tui: bridge is required")
	}
	input := textarea.New()
	input.ShowLineNumbers = false
	input.Cursor.SetMode(cursor.CursorStatic)
	input.CharLimit = 0
	input.SetHeight(3)
	input.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	a := &App{
		ctx:      context.Background(),
		ctrl:     ctrl,
		bridge:   bridge,
		keys:     defaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(80, 20),
		input:    input,
		nextStep: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.refresh()
	a.statusMsg = "Press i to describe the goal."
	return a, nil
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.bridge.wait(), a.waitForArtifact())
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case outputMsg:
		a.conversation.WriteString(msg.text)
		if a.tab == tabConversation {
			a.syncViewport()
		}
		return a, a.bridge.wait()

	case phaseMsg:
		a.refresh()
		a.statusMsg = fmt.Sprintf("Phase: %s", msg.phase)
		return a, a.bridge.wait()

	case artifactMsg:
		a.refresh()
		if a.running == "" {
			a.statusMsg = fmt.Sprintf("%s %s", msg.event.Kind, msg.event.Op)
		}
		return a, a.waitForArtifact()

	case opFinishedMsg:
		return a, a.finishOp(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, a.quit()
		}
		if a.mode != inputNone {
			return a, a.updateInput(msg)
		}
		return a, a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a.quit()
	case key.Matches(msg, a.keys.Cancel):
		if a.cancel != nil {
			a.cancel()
			a.statusMsg = fmt.Sprintf("Cancelling %s...", a.running)
		}
		return nil
	case key.Matches(msg, a.keys.Tab):
		if msg.String() == "shift+tab" {
			a.tab = (a.tab + tabCount - 1) % tabCount
		} else {
			a.tab = (a.tab + 1) % tabCount
		}
		a.syncViewport()
		return nil
	case key.Matches(msg, a.keys.Refresh):
		a.refresh()
		a.statusMsg = "Refreshed."
		return nil
	case key.Matches(msg, a.keys.Input):
		return a.openInput(inputGoal, "", "Describe the goal or answer the planner")
	case key.Matches(msg, a.keys.Execute):
		a.pending = a.nextStep
		content := ""
		if step, ok := artifact.StepAt(a.plan, a.pending); ok {
			content = step.Content()
		}
		return a.openInput(inputStep, content, fmt.Sprintf("Instructions for step %d", a.pending))
	case key.Matches(msg, a.keys.PrevStep):
		if a.nextStep > 1 {
			a.nextStep--
		}
		a.statusMsg = fmt.Sprintf("Next step: %d", a.nextStep)
		return nil
	case key.Matches(msg, a.keys.NextStep):
		a.nextStep++
		a.statusMsg = fmt.Sprintf("Next step: %d", a.nextStep)
		return nil
	case key.Matches(msg, a.keys.Plan):
		return a.startOp("write plan", a.ctrl.WritePlan)
	case key.Matches(msg, a.keys.Review):
		return a.startOp("review", a.ctrl.Review)
	case key.Matches(msg, a.keys.Respond):
		return a.startOp("respond", a.ctrl.Respond)
	case key.Matches(msg, a.keys.Loop):
		return a.startOp("review loop", a.ctrl.RunReviewLoop)
	case key.Matches(msg, a.keys.Done):
		return a.startOp("done", func(context.Context) (string, error) {
			return "", a.ctrl.MarkDone()
		})
	case key.Matches(msg, a.keys.Recover):
		return a.startOp("recover context", a.ctrl.RecoverContext)
	}
	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return cmd
}

func (a *App) openInput(mode inputMode, value, placeholder string) tea.Cmd {
	a.mode = mode
	a.input.Reset()
	a.input.Placeholder = placeholder
	if value != "" {
		a.input.SetValue(value)
	}
	return a.input.Focus()
}

func (a *App) closeInput() {
	a.mode = inputNone
	a.input.Blur()
	a.input.Reset()
}

func (a *App) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.closeInput()
		a.statusMsg = "Input cancelled."
		return nil
	case "enter":
		text := strings.TrimSpace(a.input.Value())
		mode := a.mode
		step := a.pending
		a.closeInput()
		if text == "" {
			a.statusMsg = "Nothing to send."
			return nil
		}
		if mode == inputStep {
			return a.startOp(fmt.Sprintf("execute step %d", step), func(ctx context.Context) (string, error) {
				return a.ctrl.ExecuteStep(ctx, step, text)
			})
		}
		a.conversation.WriteString(fmt.Sprintf("\nYou: %s\n", text))
		return a.startOp("refine", func(ctx context.Context) (string, error) {
			return a.ctrl.Refine(ctx, text)
		})
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return cmd
}

// startOp runs fn off the UI goroutine. Only one operation runs at a time.
func (a *App) startOp(name string, fn func(context.Context) (string, error)) tea.Cmd {
	if a.running != "" {
		a.statusMsg = fmt.Sprintf("Busy: %s is still running.", a.running)
		return nil
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.running = name
	a.cancel = cancel
	a.err = nil
	a.statusMsg = fmt.Sprintf("Running %s...", name)
	a.conversation.WriteString(fmt.Sprintf("\n» %s\n", name))
	a.tab = tabConversation
	a.syncViewport()
	return func() tea.Msg {
		defer cancel()
		response, err := fn(ctx)
		return opFinishedMsg{op: name, response: response, err: err}
	}
}

func (a *App) finishOp(msg opFinishedMsg) tea.Cmd {
	a.running = ""
	a.cancel = nil
	a.refresh()
	if msg.err != nil {
		a.err = msg.err
		a.statusMsg = describeError(msg.op, msg.err)
		return nil
	}
	if strings.HasPrefix(msg.op, "execute step") {
		a.nextStep = a.pending + 1
	}
	a.statusMsg = fmt.Sprintf("%s finished.", titleCase(msg.op))
	if a.status.Approved {
		a.statusMsg += " Plan approved."
	}
	return nil
}

func describeError(op string, err error) string {
	switch {
	case errors.Is(err, engine.ErrIterationBudget):
		return fmt.Sprintf("%s stopped: iteration budget reached.", titleCase(op))
	case errors.Is(err, engine.ErrInvalidTransition):
		return fmt.Sprintf("%s not allowed now: %v", titleCase(op), err)
	case errors.Is(err, engine.ErrBusy):
		return "Another operation is still running."
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("%s cancelled.", titleCase(op))
	default:
		return fmt.Sprintf("%s failed: %v", titleCase(op), err)
	}
}

func (a *App) quit() tea.Cmd {
	if a.cancel != nil {
		a.cancel()
	}
	a.bridge.Close()
	return tea.Quit
}

func (a *App) waitForArtifact() tea.Cmd {
	if a.artifacts == nil {
		return nil
	}
	events := a.artifacts
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return artifactMsg{event: event}
	}
}

func (a *App) refresh() {
	a.status = a.ctrl.Status()
	a.plan = a.ctrl.PlanContent()
	a.comments = a.ctrl.CommentsContent()
	a.syncViewport()
}

func (a *App) syncViewport() {
	switch a.tab {
	case tabPlan:
		a.viewport.SetContent(orPlaceholder(a.plan, "No plan yet."))
		a.viewport.GotoTop()
	case tabComments:
		a.viewport.SetContent(orPlaceholder(a.comments, "No review comments yet."))
		a.viewport.GotoTop()
	default:
		a.viewport.SetContent(orPlaceholder(a.conversation.String(), "Nothing said yet."))
		a.viewport.GotoBottom()
	}
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	inner := max(20, width-4)
	// header, status box, tabs, input, log box, footer and help
	chrome := 14
	if a.logbook != nil {
		chrome += logPanelLines
	}
	a.viewport.Width = inner
	a.viewport.Height = max(5, height-chrome)
	a.input.SetWidth(inner)
	a.help.Width = width
	a.syncViewport()
}

func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	sections := []string{
		titleStyle.Render("⬡ AGENT-COLLAB"),
		boxStyle.Width(max(20, width-2)).Render(a.renderStatusBar()),
		a.renderTabs(),
		boxStyle.Width(max(20, width-2)).Render(a.viewport.View()),
	}
	if a.mode != inputNone {
		sections = append(sections, a.input.View())
	}
	if panel := a.renderLogPanel(width); panel != "" {
		sections = append(sections, panel)
	}
	footer := mutedStyle.Render(a.statusMsg)
	if a.err != nil {
		footer = errorStyle.Render(a.statusMsg)
	}
	sections = append(sections, footer, a.help.View(a.keys))
	return strings.Join(sections, "\n")
}

func (a *App) renderStatusBar() string {
	s := a.status
	phase := fmt.Sprintf("%s %s", labelStyle.Render("Phase:"), s.PhaseLabel)
	iteration := fmt.Sprintf("Iteration %d/%d", s.Iteration, s.MaxIterations)
	if s.BudgetReached {
		iteration += " " + warnStyle.Render("(budget reached)")
	}
	parts := []string{phase, iteration, fmt.Sprintf("Step %d", a.nextStep)}
	if s.Approved {
		parts = append(parts, approvedStyle.Render("APPROVED"))
	}
	if a.running != "" {
		parts = append(parts, warnStyle.Render("running "+a.running))
	}
	lines := []string{strings.Join(parts, " · ")}
	if len(s.NextPhases) > 0 {
		next := make([]string, 0, len(s.NextPhases))
		for _, key := range s.NextPhases {
			if p, err := workflow.ParsePhase(key); err == nil {
				next = append(next, p.String())
			}
		}
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("Next: %s · waiting on %s", strings.Join(next, " | "), s.ActiveRole)))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := tab(0); t < tabCount; t++ {
		style := inactiveTab
		if t == a.tab {
			style = activeTab
		}
		tabs = append(tabs, style.Render(t.String()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (a *App) renderLogPanel(width int) string {
	if a.logbook == nil {
		return ""
	}
	entries := a.logbook.Recent(logPanelLines)
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		line := entry.Short()
		switch entry.Level {
		case logbook.LevelWarn:
			line = warnStyle.Render(line)
		case logbook.LevelError:
			line = errorStyle.Render(line)
		default:
			line = mutedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := labelStyle.Render(fmt.Sprintf("LOG · %s", fileName))
	body := strings.Join(lines, "\n")
	return boxStyle.Width(max(20, width-2)).Render(fmt.Sprintf("%s\n%s", head, body))
}

func orPlaceholder(value, placeholder string) string {
	if strings.TrimSpace(value) == "" {
		return mutedStyle.Render(placeholder)
	}
	return value
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
