package cli

import (
	"context"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/tellmenow/internal/client"
	"github.com/raphaelgruber/tellmenow/internal/models"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// eventMsg carries one stream event into the UI.
type eventMsg client.Event

// streamEndMsg reports that the stream closed.
type streamEndMsg struct {
	err error
}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	jobID    string
	msgs     <-chan tea.Msg
	state    *jobState
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(jobID string, msgs <-chan tea.Msg) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		jobID:    jobID,
		msgs:     msgs,
		state:    &jobState{},
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init starts listening for stream events.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		waitForMsg(m.msgs),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case eventMsg:
		if err := m.state.apply(client.Event(msg)); err != nil {
			m.err = err
			m.done = true
			return m, tea.Quit
		}
		if m.state.finished() {
			m.done = true
			m.err = m.state.outcome()
			return m, tea.Quit
		}
		return m, waitForMsg(m.msgs)

	case streamEndMsg:
		m.done = true
		m.err = msg.err
		if m.err == nil {
			m.err = m.state.outcome()
		}
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	st := m.state.status
	if st.Status == "" {
		return "Connecting...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", st.Status))
	bar := m.progress.ViewAs(st.Progress)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, st.Message, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues on the server.\nUse 'tellmenow watch %s' to follow it again.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	out := m.theme.completedStyle().Render("✓ "+models.JobCompleted.Message()) + "\n"
	if r := m.state.result; r != nil && r.ReportTitle != nil {
		out += fmt.Sprintf("  %s\n", *r.ReportTitle)
	}
	return out
}

// waitForMsg blocks until the stream goroutine delivers the next message.
func waitForMsg(msgs <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-msgs
		if !ok {
			return streamEndMsg{}
		}
		return msg
	}
}

// runJobProgress follows a job with the interactive progress UI.
// A Ctrl+C leaves the job running on the server and returns nil state.
func runJobProgress(ctx context.Context, follow followFunc, jobID string) (*jobState, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan tea.Msg)
	go func() {
		defer close(msgs)
		err := follow(ctx, jobID, func(e client.Event) error {
			select {
			case msgs <- eventMsg(e):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		select {
		case msgs <- streamEndMsg{err: err}:
		case <-ctx.Done():
		}
	}()

	finalModel, err := tea.NewProgram(newProgressModel(jobID, msgs)).Run()
	if err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(progressModel)
	if !ok || m.quitting {
		return nil, nil
	}
	return m.state, m.err
}
