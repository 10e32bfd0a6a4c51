package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tatianab/hustle/internal/engine"
	"github.com/tatianab/hustle/internal/game"
	"github.com/tatianab/hustle/internal/models"
)

type sessionState int

const (
	stateResume sessionState = iota
	stateSetup
	stateLoading
	statePlaying
	stateOver
	stateError
)

type setupStep int

const (
	stepName setupStep = iota
	stepJob
	stepCity
	stepChallenge
	stepMarital
	stepDependents
)

type model struct {
	state     sessionState
	ctrl      *game.Controller
	presets   game.Presets
	step      setupStep
	setup     game.Setup
	pending   []engine.Action
	view      game.View
	textInput textinput.Model
	viewport  viewport.Model
	err       error
	notice    string
	gameLog   string
	width     int
	height    int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
)

const helpText = "Pick: 1 or 1 2 · /save N · /withdraw N · /restock N · /buy id N · /sell id units · /stop id P · /take id P · /clear · /retry · /restart · /quit"

func NewModel(ctrl *game.Controller, hasSave bool) model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 40

	m := model{
		state:   stateSetup,
		ctrl:    ctrl,
		presets: ctrl.Presets(),
	}
	ti.Placeholder = m.prompt()
	if hasSave {
		m.state = stateResume
		ti.Placeholder = "y / n"
	}
	m.textInput = ti
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

type viewMsg struct {
	view game.View
	err  error
}

type turnMsg struct {
	res game.TurnResult
	err error
}

type restartMsg struct {
	err error
}

type triggerMsg struct {
	view game.View
	err  error
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.Reset()
			switch m.state {
			case stateResume:
				if strings.HasPrefix(strings.ToLower(input), "y") {
					m.state = stateLoading
					return m, m.resume()
				}
				m.state = stateSetup
				m.textInput.Placeholder = m.prompt()
				return m, nil
			case stateSetup:
				return m.advanceSetup(input)
			case statePlaying:
				return m.handleCommand(input)
			case stateOver:
				switch strings.ToLower(input) {
				case "/quit":
					return m, tea.Quit
				case "/restart":
					m.state = stateLoading
					return m, m.restart()
				}
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = int(float64(msg.Width) * 0.70)
		m.viewport.Height = msg.Height - 7
		m.viewport.SetContent(m.gameLog)

	case viewMsg:
		m.view = msg.view
		if msg.err != nil && msg.view.Phase != models.PhasePlaying {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.state = phaseState(msg.view.Phase)
		if m.state == statePlaying && m.viewport.Width == 0 {
			m.viewport = viewport.New(int(float64(m.width)*0.70), m.height-7)
		}
		if m.state == stateOver {
			m.appendReport()
			m.textInput.Placeholder = "/restart or /quit"
			return m, nil
		}
		m.appendScenario()
		m.textInput.Placeholder = "Your choice..."
		return m, nil

	case turnMsg:
		if msg.err != nil {
			m.state = statePlaying
			m.notice = badStyle.Render(msg.err.Error())
			return m, nil
		}
		m.pending = nil
		m.view = msg.res.View
		m.appendResult(msg.res)
		m.state = phaseState(m.view.Phase)
		if m.state == statePlaying {
			m.appendScenario()
		} else {
			m.appendReport()
			m.textInput.Placeholder = "/restart or /quit"
		}
		return m, nil

	case triggerMsg:
		m.state = statePlaying
		if msg.err != nil {
			m.notice = badStyle.Render(msg.err.Error())
			return m, nil
		}
		m.view = msg.view
		m.notice = goodStyle.Render("Trigger updated.")
		return m, nil

	case restartMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.reset()
		return m, nil
	}

	if m.state != stateLoading && m.state != stateError {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func phaseState(p models.Phase) sessionState {
	switch p {
	case models.PhasePlaying:
		return statePlaying
	case models.PhaseTerminated:
		return stateOver
	}
	return stateSetup
}

func (m *model) reset() {
	m.state = stateSetup
	m.step = stepName
	m.setup = game.Setup{}
	m.pending = nil
	m.view = game.View{}
	m.gameLog = ""
	m.notice = ""
	m.viewport.SetContent("")
	m.textInput.Placeholder = m.prompt()
}

// advanceSetup records the answer to the current setup question and moves
// on, starting the run after the last one.
func (m model) advanceSetup(input string) (tea.Model, tea.Cmd) {
	m.notice = ""
	switch m.step {
	case stepName:
		if input == "" {
			m.notice = badStyle.Render("Name is required.")
			return m, nil
		}
		m.setup.Name = input
		m.step = stepJob
	case stepJob:
		j, ok := pick(input, len(m.presets.Jobs), func(i int) string { return m.presets.Jobs[i].Name })
		if !ok {
			m.notice = badStyle.Render("Pick a job by number or name.")
			return m, nil
		}
		m.setup.Job = j
		m.step = stepCity
	case stepCity:
		if input == "" {
			input = "Lagos"
		}
		m.setup.City = input
		m.step = stepChallenge
	case stepChallenge:
		c, ok := pick(input, len(m.presets.Challenges), func(i int) string { return m.presets.Challenges[i].ID })
		if !ok {
			m.notice = badStyle.Render("Pick a challenge by number or id.")
			return m, nil
		}
		m.setup.Challenge = c
		m.step = stepMarital
	case stepMarital:
		if strings.HasPrefix(strings.ToLower(input), "m") {
			m.setup.MaritalStatus = "married"
			m.step = stepDependents
			break
		}
		m.setup.MaritalStatus = "single"
		return m.begin()
	case stepDependents:
		n, err := strconv.Atoi(input)
		if input == "" {
			n, err = 0, nil
		}
		if err != nil || n < 0 {
			m.notice = badStyle.Render("Enter how many people depend on you.")
			return m, nil
		}
		m.setup.Dependents = n
		return m.begin()
	}
	m.textInput.Placeholder = m.prompt()
	return m, nil
}

func (m model) begin() (tea.Model, tea.Cmd) {
	m.state = stateLoading
	return m, m.start(m.setup)
}

func pick(input string, n int, name func(int) string) (string, bool) {
	if i, err := strconv.Atoi(input); err == nil {
		if i < 1 || i > n {
			return "", false
		}
		return name(i - 1), true
	}
	for i := 0; i < n; i++ {
		if strings.EqualFold(name(i), input) {
			return name(i), true
		}
	}
	return "", false
}

func (m model) prompt() string {
	switch m.step {
	case stepName:
		return "What's your name?"
	case stepJob:
		return "Job number..."
	case stepCity:
		return "City (Lagos)..."
	case stepChallenge:
		return "Challenge number..."
	case stepMarital:
		return "single or married?"
	case stepDependents:
		return "Number of dependents..."
	}
	return ""
}

func (m model) handleCommand(input string) (tea.Model, tea.Cmd) {
	if input == "" {
		return m, nil
	}
	c, err := parseCommand(input)
	if err != nil {
		m.notice = badStyle.Render(err.Error())
		return m, nil
	}
	m.notice = ""
	switch c.kind {
	case cmdQuit:
		return m, tea.Quit
	case cmdHelp:
		m.notice = helpText
	case cmdRestart:
		m.state = stateLoading
		return m, m.restart()
	case cmdRetry:
		m.state = stateLoading
		return m, m.retry()
	case cmdClear:
		m.pending = nil
	case cmdAction:
		m.pending = append(m.pending, c.action)
		m.notice = "Queued " + c.action.String() + ". It runs with your next choice."
	case cmdTrigger:
		return m, m.trigger(c)
	case cmdSelect:
		m.logLine("> " + input)
		m.state = stateLoading
		return m, m.submit(game.Turn{Selections: c.selections, Actions: m.pending})
	}
	return m, nil
}

func (m *model) logLine(s string) {
	w := m.viewport.Width
	m.gameLog += "\n" + userStyle.Width(w).Render(s) + "\n"
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

func (m *model) logText(s string) {
	m.gameLog += gameStyle.Width(m.viewport.Width).Render(s) + "\n"
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

func (m *model) appendScenario() {
	v := m.view
	if v.Scenario == nil {
		if v.ScenarioError != "" {
			m.logText(badStyle.Render("The narrator is quiet: " + v.ScenarioError + ". Type /retry."))
		}
		return
	}
	sc := v.Scenario
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n\n", titleStyle.Render(fmt.Sprintf("WEEK %d: %s", v.State.CurrentTurn, sc.Title)))
	b.WriteString(sc.Description + "\n\n")
	if sc.News != nil {
		fmt.Fprintf(&b, "📰 %s (%s)\n\n", sc.News.Headline, sc.News.Impact)
	}
	for _, p := range sc.Trends {
		fmt.Fprintf(&b, "%s %s\n", helpStyle.Render(p.Handle), p.Content)
	}
	if len(sc.Trends) > 0 {
		b.WriteString("\n")
	}
	for i, c := range sc.Choices {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Text)
	}
	m.logText(b.String())
}

func (m *model) appendResult(res game.TurnResult) {
	var b strings.Builder
	b.WriteString(res.Entry.Consequence + "\n")
	entries := []models.LedgerEntry{res.Entry}
	if res.Liquidations != nil {
		entries = append(entries, *res.Liquidations)
	}
	for _, e := range entries {
		for _, ev := range e.Events {
			line := fmt.Sprintf("  %s: %s", ev.Kind, ev.Text)
			switch {
			case ev.Amount > 0:
				line += " " + goodStyle.Render("+"+models.Naira(ev.Amount))
			case ev.Amount < 0:
				line += " " + badStyle.Render(models.Naira(ev.Amount))
			}
			b.WriteString(line + "\n")
		}
	}
	if res.Lesson != "" {
		b.WriteString("\n" + helpStyle.Render("Lesson: "+res.Lesson) + "\n")
	}
	m.logText(b.String())
}

func (m *model) appendReport() {
	v := m.view
	var b strings.Builder
	if v.Outcome != nil && v.Outcome.Reason == models.EndBankrupt {
		b.WriteString("\n" + badStyle.Render("BANKRUPT. Sapa has won this round.") + "\n")
	} else {
		b.WriteString("\n" + goodStyle.Render("You made it through the year.") + "\n")
	}
	if r := v.Report; r != nil {
		fmt.Fprintf(&b, "\n%s %s\n%s\n\n", titleStyle.Render("GRADE"), r.Grade, r.Verdict)
		for _, in := range r.Insights {
			b.WriteString("• " + in + "\n")
		}
	}
	fmt.Fprintf(&b, "\nNet worth: %s\n", models.Naira(v.NetWorth))
	m.logText(b.String())
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateResume:
		s = fmt.Sprintf("Welcome back to Naija Hustle!\n\n%s\n\n%s",
			"You have a saved run. Continue it?", m.textInput.View())

	case stateSetup:
		s = "Welcome to Naija Hustle!\n\n" + m.setupHint() + "\n\n" + m.textInput.View()
		if m.notice != "" {
			s += "\n\n" + m.notice
		}

	case stateLoading:
		s = "\n  The narrator is cooking... please wait.\n"

	case statePlaying, stateOver:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), m.renderState())
		help := helpStyle.Render(helpText)
		if m.state == stateOver {
			help = helpStyle.Render("/restart to play again, /quit to leave.")
		}
		parts := []string{mainView, "\n" + m.textInput.View()}
		if m.notice != "" {
			parts = append(parts, m.notice)
		}
		parts = append(parts, help)
		s = lipgloss.JoinVertical(lipgloss.Left, parts...)

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) setupHint() string {
	var b strings.Builder
	switch m.step {
	case stepJob:
		b.WriteString("Choose your hustle:\n")
		for i, j := range m.presets.Jobs {
			pay := models.Naira(j.Salary) + "/month"
			if j.Trade {
				pay = "sales from " + models.Naira(j.Inventory) + " stock"
			}
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, j.Name, pay)
		}
	case stepChallenge:
		b.WriteString("Choose your starting point:\n")
		for i, c := range m.presets.Challenges {
			fmt.Fprintf(&b, "%d. %s: %s (%s)\n", i+1, c.Name, c.Description, models.Naira(c.Cash))
		}
	default:
		b.WriteString(m.prompt())
	}
	return b.String()
}

func (m model) renderState() string {
	v := m.view
	st := v.State
	var b strings.Builder

	surge := ""
	if v.Surge {
		surge = badStyle.Render(" SURGE")
	}
	fmt.Fprintf(&b, "%s\nWeek %d/%d · %s%s\n\n", titleStyle.Render(strings.ToUpper(st.Profile.Name)), st.CurrentTurn, v.MaxTurns, v.Season, surge)

	b.WriteString(titleStyle.Render("MONEY") + "\n")
	fmt.Fprintf(&b, "Cash: %s\nSavings: %s\nDebt: %s\n", models.Naira(st.Cash), models.Naira(st.Savings), models.Naira(st.Debt))
	if st.Income == models.IncomeTrade {
		fmt.Fprintf(&b, "Stock: %s\n", models.Naira(st.Inventory))
	} else {
		fmt.Fprintf(&b, "Salary: %s\n", models.Naira(st.Salary))
	}
	fmt.Fprintf(&b, "Happiness: %d\nNet worth: %s\nHealth: %s\n\n", st.Happiness, models.Naira(v.NetWorth), v.HealthLabel)

	b.WriteString(titleStyle.Render("PORTFOLIO") + "\n")
	if len(v.Holdings) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, h := range v.Holdings {
		pnl := h.Unrealized.StringFixed(0)
		if h.Unrealized.IsNegative() {
			pnl = badStyle.Render(pnl)
		} else {
			pnl = goodStyle.Render("+" + pnl)
		}
		fmt.Fprintf(&b, "%s x%d @ %s %s\n", h.AssetID, h.Units, models.Naira(h.Price), pnl)
	}

	if len(m.pending) > 0 {
		b.WriteString("\n" + titleStyle.Render("QUEUED") + "\n")
		for _, a := range m.pending {
			b.WriteString("- " + a.String() + "\n")
		}
	}

	w := int(float64(m.width) * 0.28)
	return stateStyle.Width(w).Height(m.viewport.Height).Render(b.String())
}

func (m model) start(s game.Setup) tea.Cmd {
	return func() tea.Msg {
		v, err := m.ctrl.Start(context.Background(), s)
		return viewMsg{v, err}
	}
}

func (m model) resume() tea.Cmd {
	return func() tea.Msg {
		v, err := m.ctrl.Resume(context.Background())
		return viewMsg{v, err}
	}
}

func (m model) retry() tea.Cmd {
	return func() tea.Msg {
		v, err := m.ctrl.RetryScenario(context.Background())
		return viewMsg{v, err}
	}
}

func (m model) restart() tea.Cmd {
	return func() tea.Msg {
		return restartMsg{m.ctrl.Restart(context.Background())}
	}
}

func (m model) submit(t game.Turn) tea.Cmd {
	return func() tea.Msg {
		res, err := m.ctrl.Submit(context.Background(), t)
		return turnMsg{res, err}
	}
}

func (m model) trigger(c command) tea.Cmd {
	return func() tea.Msg {
		err := m.ctrl.SetTrigger(context.Background(), c.assetID, c.trigger, c.level)
		return triggerMsg{m.ctrl.View(), err}
	}
}

// Run starts the terminal UI and blocks until the player quits.
func Run(ctrl *game.Controller) error {
	hasSave, err := ctrl.HasSavedRun(context.Background())
	if err != nil {
		return err
	}
	p := tea.NewProgram(NewModel(ctrl, hasSave), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
