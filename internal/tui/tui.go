// Package tui renders a small live status view in the terminal. It is
// optional; the agent runs headless without it.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Status is the snapshot the view renders.
type Status struct {
	URL         string
	VideoID     string
	Creator     string
	Eligible    bool
	BridgeReady bool
	FlowPhase   string
	TipsSent    int
	LastEvent   string
}

type statusMsg Status

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

// Model is the bubbletea model for the status view.
type Model struct {
	status Status
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case statusMsg:
		m.status = Status(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	s := m.status

	bridge := warnStyle.Render("waiting")
	if s.BridgeReady {
		bridge = okStyle.Render("ready")
	}
	eligible := dimStyle.Render("no")
	if s.Eligible {
		eligible = okStyle.Render("yes")
	}
	phase := s.FlowPhase
	if phase == "" {
		phase = "idle"
	}

	out := titleStyle.Render("amplify-agent") + "\n\n"
	out += labelStyle.Render("page") + valueOr(s.URL, "-") + "\n"
	out += labelStyle.Render("video") + valueOr(s.VideoID, "-") + "\n"
	out += labelStyle.Render("creator") + valueOr(s.Creator, "-") + "\n"
	out += labelStyle.Render("eligible") + eligible + "\n"
	out += labelStyle.Render("bridge") + bridge + "\n"
	out += labelStyle.Render("flow") + phase + "\n"
	out += labelStyle.Render("tips sent") + fmt.Sprintf("%d", s.TipsSent) + "\n"
	if s.LastEvent != "" {
		out += "\n" + dimStyle.Render(s.LastEvent) + "\n"
	}
	out += "\n" + dimStyle.Render("press q to quit") + "\n"
	return out
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// UI owns a running status view.
type UI struct {
	program *tea.Program
}

// Start launches the view. Run's result is delivered on the returned
// channel so the caller can treat a user quit as a shutdown signal.
func Start() (*UI, <-chan error) {
	p := tea.NewProgram(Model{})
	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()
	return &UI{program: p}, done
}

// SetStatus pushes a new snapshot into the view.
func (u *UI) SetStatus(s Status) {
	u.program.Send(statusMsg(s))
}

// Stop terminates the view.
func (u *UI) Stop() {
	u.program.Quit()
}
