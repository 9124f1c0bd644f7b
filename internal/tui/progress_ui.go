package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	stepStatusPending = "pending"
	stepStatusRunning = "running"
	stepStatusDone    = "done"
	stepStatusSkipped = "skipped"
	stepStatusError   = "error"
)

const (
	keyCtrlC = "ctrl+c"
	keyQuit  = "q"
)

// ReleaseStepItem represents a step in the release run
type ReleaseStepItem struct {
	StepIndex   int
	Description string
	Status      string
	Note        string
	Error       error
	Elapsed     time.Duration
}

// ProgressModel is the bubbletea model for release progress
type ProgressModel struct {
	title    string
	steps    []ReleaseStepItem
	spinner  spinner.Model
	done     bool
	quitting bool
	styles   progressStyles
	updates  <-chan ProgressUpdate
}

type progressStyles struct {
	spinnerStyle lipgloss.Style
	doneStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	skipStyle    lipgloss.Style
	dimStyle     lipgloss.Style
	timeStyle    lipgloss.Style
}

// StepUpdateMsg is sent when a step status changes
type StepUpdateMsg struct {
	StepIndex int
	Status    string
	Note      string
	Error     error
	Elapsed   time.Duration
}

// NewProgressModel creates a new progress model for the given step descriptions
func NewProgressModel(title string, stepDescriptions []string) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	steps := make([]ReleaseStepItem, len(stepDescriptions))
	for i, desc := range stepDescriptions {
		steps[i] = ReleaseStepItem{
			StepIndex:   i,
			Description: desc,
			Status:      stepStatusPending,
		}
	}

	return ProgressModel{
		title:   title,
		steps:   steps,
		spinner: s,
		styles: progressStyles{
			spinnerStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
			doneStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
			errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			skipStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			dimStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
			timeStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		},
	}
}

// WithUpdates attaches the channel the model polls for updates
func (m ProgressModel) WithUpdates(updates <-chan ProgressUpdate) ProgressModel {
	m.updates = updates
	return m
}

// Init initializes the bubbletea model
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.checkForUpdates())
}

// checkForUpdates polls the channel for the next update
func (m ProgressModel) checkForUpdates() tea.Cmd {
	if m.updates == nil {
		return nil
	}

	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		select {
		case update, ok := <-m.updates:
			if !ok {
				return tea.Quit()
			}
			return updateToMsg(update)
		default:
			return nil
		}
	})
}

func updateToMsg(update ProgressUpdate) tea.Msg {
	msg := StepUpdateMsg{StepIndex: update.StepIndex, Error: update.Error, Elapsed: update.Elapsed}
	switch update.Type {
	case UpdateStarted:
		msg.Status = stepStatusRunning
	case UpdateCompleted:
		msg.Status = stepStatusDone
	case UpdateFailed:
		msg.Status = stepStatusError
	case UpdateSkipped:
		msg.Status = stepStatusSkipped
		msg.Note = update.Description
	}
	return msg
}

// Update handles message updates for the bubbletea model
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == keyCtrlC || msg.String() == keyQuit {
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, tea.Batch(cmd, m.checkForUpdates())

	case StepUpdateMsg:
		m = m.apply(msg)
		return m, m.checkForUpdates()

	case tea.QuitMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m ProgressModel) apply(msg StepUpdateMsg) ProgressModel {
	if msg.StepIndex < 0 || msg.StepIndex >= len(m.steps) {
		return m
	}
	steps := make([]ReleaseStepItem, len(m.steps))
	copy(steps, m.steps)
	step := &steps[msg.StepIndex]
	step.Status = msg.Status
	if msg.Error != nil {
		step.Error = msg.Error
	}
	if msg.Note != "" {
		step.Note = msg.Note
	}
	if msg.Elapsed > 0 {
		step.Elapsed = msg.Elapsed
	}
	m.steps = steps

	if msg.Status == stepStatusError {
		m.done = true
		return m
	}
	m.done = true
	for _, s := range m.steps {
		if s.Status != stepStatusDone && s.Status != stepStatusSkipped {
			m.done = false
			break
		}
	}
	return m
}

// Done reports whether every step finished or one failed
func (m ProgressModel) Done() bool {
	return m.done
}

// View renders the TUI
func (m ProgressModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.title + ":\n")
	b.WriteString("\n")

	for i, step := range m.steps {
		var icon, status string
		switch step.Status {
		case stepStatusPending:
			icon = m.styles.dimStyle.Render("○")
			status = m.styles.dimStyle.Render("pending")
		case stepStatusRunning:
			icon = m.spinner.View()
			status = m.styles.spinnerStyle.Render("running...")
		case stepStatusDone:
			icon = m.styles.doneStyle.Render("✓")
			status = m.styles.doneStyle.Render("done")
			if step.Elapsed > 0 {
				status += " " + m.styles.timeStyle.Render(fmt.Sprintf("(%v)", step.Elapsed.Round(100*time.Millisecond)))
			}
		case stepStatusSkipped:
			icon = m.styles.skipStyle.Render("-")
			status = m.styles.skipStyle.Render("skipped")
			if step.Note != "" {
				status += " " + m.styles.dimStyle.Render("("+step.Note+")")
			}
		case stepStatusError:
			icon = m.styles.errorStyle.Render("✗")
			status = m.styles.errorStyle.Render("failed")
		}

		line := fmt.Sprintf("  %s %d. %s %s", icon, i+1, step.Description, status)
		if step.Status == stepStatusError && step.Error != nil {
			line += " " + m.styles.errorStyle.Render("→ "+step.Error.Error())
		}

		b.WriteString(line)
		if i < len(m.steps)-1 {
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")

	if m.done {
		completed, failed := 0, 0
		for _, step := range m.steps {
			switch step.Status {
			case stepStatusDone, stepStatusSkipped:
				completed++
			case stepStatusError:
				failed++
			}
		}
		b.WriteString("\n")
		if failed > 0 {
			b.WriteString(m.styles.errorStyle.Render(fmt.Sprintf("Completed: %d, Failed: %d", completed, failed)))
		} else {
			b.WriteString(m.styles.doneStyle.Render(fmt.Sprintf("✓ All %d steps completed successfully", completed)))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RunProgressTUI runs the progress TUI until the update channel is closed
func RunProgressTUI(title string, stepDescriptions []string, updates <-chan ProgressUpdate, done chan<- bool) error {
	m := NewProgressModel(title, stepDescriptions).WithUpdates(updates)

	program := tea.NewProgram(m, tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	_, err := program.Run()

	// Signal completion after the program has restored the terminal
	if done != nil {
		select {
		case done <- true:
		default:
		}
	}

	return err
}
