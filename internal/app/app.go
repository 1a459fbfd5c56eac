package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/period"
	"github.com/brensch/gdelthelper/internal/session"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	menuStyle        = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle = lipgloss.NewStyle().Padding(0, 1)
	logLevelStyle    = map[slog.Level]lipgloss.Style{
		slog.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		slog.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
		slog.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		slog.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

const maxLogLines = 200

// Actions are the background jobs the menu can start. Each runs inside a
// session and must honour ctx.
type Actions struct {
	Download func(ctx context.Context, s *session.Session, years []int) error
	Process  func(ctx context.Context, s *session.Session) error
	Detect   func(ctx context.Context, s *session.Session) error
}

const (
	choiceDownload = "Download Events"
	choiceProcess  = "Process Events"
	choiceDetect   = "Detect Latest Year"
	choiceExit     = "Exit"
)

type logLine struct {
	level slog.Level
	text  string
}

// AppModel is the foreground. It owns all UI state and learns about
// background sessions only from the queue it drains on every poll.
type AppModel struct {
	Cfg     config.Config
	State   AppState
	ctx     context.Context
	runner  *session.Runner
	actions Actions
	poll    time.Duration

	menuChoices      []string
	menuCursor       int
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	active     *session.Session
	done       int
	total      int
	logs       []logLine
	years      []int
	selectable []int
	yearCursor int

	lastError error
	Quitting  bool

	termWidth  int
	termHeight int
}

// NewAppModel starts sessions under ctx through runner.
func NewAppModel(ctx context.Context, cfg config.Config, runner *session.Runner, actions Actions) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	years := append([]int(nil), cfg.Years...)
	if len(years) == 0 {
		years = []int{time.Now().UTC().Year()}
	}
	slices.Sort(years)
	return &AppModel{
		Cfg:             cfg,
		State:           ShowMenu,
		ctx:             ctx,
		runner:          runner,
		actions:         actions,
		poll:            config.DefaultPollInterval,
		menuChoices:     []string{choiceDownload, choiceProcess, choiceDetect, choiceExit},
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		years:           years,
		yearCursor:      years[len(years)-1],
		termWidth:       80,
		termHeight:      24,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, pollCmd(m.poll))
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case m.State == ShowMenu:
			cmds = append(cmds, m.handleMenuKey(msg))
		case m.State == ShowError:
			if msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc {
				m.State = ShowMenu
				m.lastError = nil
			} else if msg.String() == "q" || msg.String() == "ctrl+c" {
				return m, m.quit()
			}
		case m.State.running():
			switch msg.String() {
			case "c":
				if m.active != nil && m.runner.Cancel(m.active.Kind) {
					m.appendLog(slog.LevelWarn, "Cancellation requested.")
				}
			case "q", "ctrl+c":
				return m, m.quit()
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case pollMsg:
		for _, ev := range m.runner.Queue().Pending() {
			cmds = append(cmds, m.apply(ev))
		}
		if m.State != Exiting {
			cmds = append(cmds, pollCmd(m.poll))
		}
	case GeneralErrorMsg:
		m.lastError = msg.Err
		m.State = ShowError
	case spinner.TickMsg:
		if m.State.running() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		progModel, frameCmd := m.overallProgress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.overallProgress = newModel
			cmds = append(cmds, frameCmd)
		}
	}
	return m, tea.Batch(cmds...)
}

// apply folds one queued event into the model.
func (m *AppModel) apply(ev session.Event) tea.Cmd {
	switch ev.Kind {
	case session.KindLog:
		m.appendLog(ev.Level, ev.Message)
	case session.KindProgress:
		if m.active == nil || ev.SessionID != m.active.ID {
			return nil
		}
		m.done, m.total = ev.Done, ev.Total
		var percent float64
		if ev.Total > 0 {
			percent = float64(ev.Done) / float64(ev.Total)
		}
		return m.overallProgress.SetPercent(percent)
	case session.KindYears:
		m.selectable = ev.Years
		lo, hi := m.yearRange()
		m.yearCursor = min(max(m.yearCursor, lo), hi)
	case session.KindDone:
		if m.active == nil || ev.SessionID != m.active.ID {
			return nil
		}
		m.active = nil
		if ev.Err != nil && !errors.Is(ev.Err, context.Canceled) {
			m.lastError = ev.Err
			m.State = ShowError
			return nil
		}
		m.State = ShowMenu
	}
	return nil
}

func (m *AppModel) appendLog(level slog.Level, text string) {
	m.logs = append(m.logs, logLine{level: level, text: text})
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *AppModel) quit() tea.Cmd {
	if m.active != nil {
		m.runner.Cancel(m.active.Kind)
	}
	m.Quitting = true
	m.State = Exiting
	return tea.Quit
}

func (m *AppModel) handleMenuKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(m.menuChoices)-1 {
			m.menuCursor++
		}
	case "left", "h":
		if lo, _ := m.yearRange(); m.yearCursor > lo {
			m.yearCursor--
		}
	case "right", "l":
		if _, hi := m.yearRange(); m.yearCursor < hi {
			m.yearCursor++
		}
	case " ":
		m.toggleYear(m.yearCursor)
	case "enter":
		return m.start(m.menuChoices[m.menuCursor])
	case "ctrl+c", "q":
		return m.quit()
	}
	return nil
}

// yearRange is the span the year cursor may cover. Detection narrows or
// extends it; before that it runs up to the current year.
func (m *AppModel) yearRange() (int, int) {
	if len(m.selectable) > 0 {
		return m.selectable[0], m.selectable[len(m.selectable)-1]
	}
	return period.FirstYear, max(period.FirstYear, time.Now().UTC().Year())
}

func (m *AppModel) toggleYear(y int) {
	if i, found := slices.BinarySearch(m.years, y); found {
		m.years = slices.Delete(m.years, i, i+1)
	} else {
		m.years = slices.Insert(m.years, i, y)
	}
}

func (m *AppModel) start(choice string) tea.Cmd {
	var (
		kind  string
		state AppState
		fn    func(ctx context.Context, s *session.Session) error
	)
	switch choice {
	case choiceDownload:
		years := append([]int(nil), m.years...)
		kind, state = session.KindDownload, DownloadingFiles
		fn = func(ctx context.Context, s *session.Session) error { return m.actions.Download(ctx, s, years) }
	case choiceProcess:
		kind, state, fn = session.KindProcess, ProcessingFiles, m.actions.Process
	case choiceDetect:
		kind, state, fn = session.KindDetect, DetectingYears, m.actions.Detect
	case choiceExit:
		return m.quit()
	}
	if fn == nil {
		return nil
	}

	s, err := m.runner.Start(m.ctx, kind, fn)
	if err != nil {
		m.lastError = err
		m.State = ShowError
		return nil
	}
	m.active = s
	m.State = state
	m.done, m.total = 0, 0
	m.lastError = nil
	return tea.Batch(m.spinner.Tick, m.overallProgress.SetPercent(0))
}

func (m *AppModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- GDELT Event Helper ---"))
	b.WriteString("\n\n")

	switch m.State {
	case ShowMenu:
		b.WriteString(m.viewMenu())
	case DownloadingFiles, ProcessingFiles, DetectingYears:
		b.WriteString(m.viewProgress())
	case ShowError:
		b.WriteString(m.viewError())
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n\n")
	switch {
	case m.State == ShowMenu:
		b.WriteString(infoStyle.Render("Use up/down arrows and Enter to select, left/right and Space to pick years. 'q' or Ctrl+C to quit."))
	case m.State.running():
		b.WriteString(infoStyle.Render("Task running... 'c' to cancel, 'q' or Ctrl+C to quit."))
	case m.State == ShowError:
		b.WriteString(infoStyle.Render("Press Enter or Esc to return to menu. 'q' or Ctrl+C to quit."))
	}
	return b.String()
}

func (m *AppModel) viewMenu() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Years: %s   Raw: %s   Output: %s\n", joinYears(m.years), m.Cfg.RawDir, m.Cfg.OutputPath)
	if len(m.selectable) > 0 {
		fmt.Fprintf(&b, "Selectable years: %d-%d\n", m.selectable[0], m.selectable[len(m.selectable)-1])
	}
	mark := " "
	if slices.Contains(m.years, m.yearCursor) {
		mark = "x"
	}
	fmt.Fprintf(&b, "Year: < %d > [%s]\n", m.yearCursor, mark)
	b.WriteString("\nSelect an action:\n")
	for i, choice := range m.menuChoices {
		line := "  " + choice
		if m.menuCursor == i {
			line = "> " + selectedStyle.Render(choice)
		}
		b.WriteString(menuStyle.Render(line))
		b.WriteString("\n")
	}
	if len(m.logs) > 0 {
		b.WriteString("\n")
		b.WriteString(m.viewLogs(5))
	}
	return b.String()
}

func (m *AppModel) viewProgress() string {
	var b strings.Builder
	kind := ""
	if m.active != nil {
		kind = m.active.Kind
	}
	fmt.Fprintf(&b, "%s Running: %s\n", m.spinner.View(), kind)
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	fmt.Fprintf(&b, " (%d/%d)\n\n", m.done, m.total)
	b.WriteString(m.viewLogs(max(1, m.termHeight-10)))
	return b.String()
}

func (m *AppModel) viewLogs(n int) string {
	var b strings.Builder
	start := max(0, len(m.logs)-n)
	for _, l := range m.logs[start:] {
		style, ok := logLevelStyle[l.level]
		if !ok {
			style = infoStyle
		}
		text := l.text
		if m.termWidth > 4 && len(text) > m.termWidth-1 {
			text = text[:m.termWidth-4] + "..."
		}
		b.WriteString(style.Render(text))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *AppModel) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("An error occurred:"))
	b.WriteString("\n\n")
	if m.lastError != nil {
		b.WriteString(wrapText(m.lastError.Error(), m.termWidth-4))
	} else {
		b.WriteString("Unknown error.")
	}
	b.WriteString("\n")
	return b.String()
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ",")
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}
