package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/cargo-wasm/build"
)

var (
	stageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	skipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// eventMsg carries one pipeline event into the program
type eventMsg build.Event

// finishedMsg is sent once the pipeline returns
type finishedMsg struct {
	report *build.Report
	err    error
}

type step struct {
	stage   build.Stage
	subject string
	status  build.Status
}

type progressModel struct {
	err     error
	report  *build.Report
	cancel  context.CancelFunc
	steps   []step
	spinner spinner.Model
	done    bool
}

func newProgressModel(cancel context.CancelFunc) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = stageStyle
	return &progressModel{spinner: s, cancel: cancel}
}

func (m *progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case eventMsg:
		m.apply(build.Event(msg))
		return m, nil

	case finishedMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply updates the step for the event's stage and subject, or appends one
func (m *progressModel) apply(ev build.Event) {
	for i := range m.steps {
		if m.steps[i].stage == ev.Stage && m.steps[i].subject == ev.Subject {
			m.steps[i].status = ev.Status
			return
		}
	}
	m.steps = append(m.steps, step{stage: ev.Stage, subject: ev.Subject, status: ev.Status})
}

func (m *progressModel) View() string {
	var b strings.Builder
	for _, s := range m.steps {
		label := string(s.stage)
		if s.subject != "" {
			label += " " + s.subject
		}

		switch s.status {
		case build.StatusStarted:
			if m.done {
				b.WriteString("  ")
			} else {
				b.WriteString(m.spinner.View())
			}
			b.WriteString(" " + label)
		case build.StatusDone:
			b.WriteString(doneStyle.Render("✓ " + label))
		case build.StatusFailed:
			b.WriteString(failStyle.Render("✗ " + label))
		case build.StatusSkipped:
			b.WriteString(skipStyle.Render("- " + label + " (skipped)"))
		}
		b.WriteString("\n")
	}
	if m.done && m.err != nil {
		b.WriteString(failStyle.Render(fmt.Sprintf("%d failure(s)", failures(m.report, m.err))))
		b.WriteString("\n")
	}
	return b.String()
}

func failures(r *build.Report, err error) int {
	if r == nil || len(r.Failures) == 0 {
		if err != nil {
			return 1
		}
		return 0
	}
	return len(r.Failures)
}

// runWithProgress runs the pipeline on a goroutine and renders its events
// until it finishes.
func runWithProgress(ctx context.Context, p *build.Pipeline) (*build.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newProgressModel(cancel))
	p.Observer = func(ev build.Event) { prog.Send(eventMsg(ev)) }

	results := make(chan finishedMsg, 1)
	go func() {
		report, err := p.Run(ctx)
		res := finishedMsg{report: report, err: err}
		results <- res
		prog.Send(res)
	}()

	_, progErr := prog.Run()
	if progErr != nil {
		cancel()
	}
	res := <-results
	if res.err == nil && progErr != nil {
		return res.report, progErr
	}
	return res.report, res.err
}
