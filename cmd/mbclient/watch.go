package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/56kcloud/mb-client/internal/events"
	"github.com/56kcloud/mb-client/internal/status"
	"github.com/56kcloud/mb-client/internal/tracking"
)

const progressBarWidth = 40

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true)
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	watchErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type progressEventMsg struct {
	event events.Event
}

type sessionDoneMsg struct {
	outcome tracking.Outcome
	cause   error
}

// progressModel renders a live view of one tracking session.
type progressModel struct {
	bookID  string
	spinner spinner.Model
	bar     progress.Model
	current status.Message
	seen    bool
	history []string
	done    bool
	outcome tracking.Outcome
	cause   error
}

func newProgressModel(bookID string) progressModel {
	return progressModel{
		bookID: bookID,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
		),
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressBarWidth)),
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progressEventMsg:
		m.current = msg.event.Detail
		m.seen = true
		m.history = append(m.history, formatEventLine(msg.event))
		return m, nil
	case sessionDoneMsg:
		m.done = true
		m.outcome = msg.outcome
		m.cause = msg.cause
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("Book " + m.bookID))
	b.WriteString("\n")
	for _, line := range m.history {
		b.WriteString(watchMutedStyle.Render(line))
		b.WriteString("\n")
	}
	if m.done {
		b.WriteString(renderOutcome(m.outcome, m.cause))
		b.WriteString("\n")
		return b.String()
	}
	label := "Waiting for worker"
	if m.seen {
		label = stateLabel(m.current.State)
	}
	fmt.Fprintf(&b, "%s %-12s %s\n", m.spinner.View(), label, m.bar.ViewAs(float64(clampPercent(m.current.Progress))/100))
	return b.String()
}

func renderOutcome(outcome tracking.Outcome, cause error) string {
	switch outcome {
	case tracking.OutcomeCompleted:
		return watchOKStyle.Render("Design ready")
	case tracking.OutcomeClosed:
		return watchMutedStyle.Render("Stopped watching")
	default:
		text := "Design " + strings.ToLower(outcomeLabel(outcome))
		if cause != nil {
			text += ": " + cause.Error()
		}
		return watchErrStyle.Render(text)
	}
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func formatEventLine(evt events.Event) string {
	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("%s  %-12s %3d%%  %s",
		at.Local().Format("15:04:05"),
		stateLabel(evt.Detail.State),
		evt.Detail.Progress,
		evt.Detail.Message,
	)
}

// progressWatcher renders transitions of one session. It is attached before
// the request is submitted so the first notifications are not missed.
type progressWatcher interface {
	wait(ctx context.Context, session *tracking.Session) error
	detach()
}

type interactiveWatcher struct {
	sub     events.Subscription
	program *tea.Program
}

func newInteractiveWatcher(ctx context.Context, out io.Writer, bookID string) *interactiveWatcher {
	p := tea.NewProgram(
		newProgressModel(bookID),
		tea.WithInput(nil),
		tea.WithOutput(out),
		tea.WithContext(ctx),
	)
	w := &interactiveWatcher{program: p}
	w.sub = events.Register(events.TypeProgressUpdated, func(evt events.Event) {
		p.Send(progressEventMsg{event: evt})
	})
	return w
}

func (w *interactiveWatcher) wait(ctx context.Context, session *tracking.Session) error {
	go func() {
		<-session.Done()
		outcome, cause := session.Outcome()
		w.program.Send(sessionDoneMsg{outcome: outcome, cause: cause})
	}()
	if _, err := w.program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (w *interactiveWatcher) detach() {
	events.Unregister(w.sub)
}

type lineWatcher struct {
	sub events.Subscription
}

func newLineWatcher(out io.Writer, asJSON bool) *lineWatcher {
	var mu sync.Mutex
	w := &lineWatcher{}
	w.sub = events.Register(events.TypeProgressUpdated, func(evt events.Event) {
		mu.Lock()
		defer mu.Unlock()
		if asJSON {
			_ = writeJSONLine(out, evt)
			return
		}
		fmt.Fprintln(out, formatEventLine(evt))
	})
	return w
}

func (w *lineWatcher) wait(ctx context.Context, session *tracking.Session) error {
	select {
	case <-session.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *lineWatcher) detach() {
	events.Unregister(w.sub)
}
