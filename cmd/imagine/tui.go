package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oukeidos/imagine/internal/display"
	"github.com/oukeidos/imagine/internal/gallery"
	"github.com/oukeidos/imagine/internal/payload"
	"github.com/oukeidos/imagine/internal/session"
)

const (
	tuiMaxTiles   = 12
	tuiMaxNotices = 3
)

var (
	tuiTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	tuiMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tuiErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	tuiOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	tuiPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type statusMsg session.Status

type imageMsg gallery.Change

type noticeMsg session.Notice

type runDoneMsg struct {
	summary session.Summary
	err     error
}

type tile struct {
	img  gallery.Image
	size int
}

type runModel struct {
	prompt   string
	spinner  spinner.Model
	status   session.Status
	tiles    map[string]tile
	notices  []session.Notice
	width    int
	stop     func()
	stopping bool
	done     bool
	summary  session.Summary
	err      error
}

func newRunModel(prompt string, stop func()) runModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = tuiTitleStyle
	return runModel{
		prompt:  prompt,
		spinner: sp,
		tiles:   map[string]tile{},
		stop:    stop,
		width:   80,
		status:  session.Status{Phase: session.PhaseStarting, Message: "Starting"},
	}
}

func (m runModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done || m.stopping {
				return m, tea.Quit
			}
			m.stopping = true
			if m.stop != nil {
				m.stop()
			}
		}
		return m, nil
	case statusMsg:
		m.status = session.Status(msg)
		return m, nil
	case imageMsg:
		m.applyChange(gallery.Change(msg))
		return m, nil
	case noticeMsg:
		m.notices = append(m.notices, session.Notice(msg))
		if len(m.notices) > tuiMaxNotices {
			m.notices = m.notices[len(m.notices)-tuiMaxNotices:]
		}
		return m, nil
	case runDoneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *runModel) applyChange(c gallery.Change) {
	if c.Kind == gallery.ChangeRetracted {
		delete(m.tiles, c.Image.ID)
		return
	}
	size, _ := payload.EstimateBytes(c.Image.Payload)
	m.tiles[c.Image.ID] = tile{img: c.Image, size: size}
}

func (m runModel) sortedTiles() []tile {
	out := make([]tile, 0, len(m.tiles))
	for _, t := range m.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].img.Sequence < out[j].img.Sequence })
	if len(out) > tuiMaxTiles {
		out = out[len(out)-tuiMaxTiles:]
	}
	return out
}

func (m runModel) View() string {
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	var b strings.Builder
	b.WriteString(tuiTitleStyle.Render("imagine"))
	b.WriteString(" ")
	b.WriteString(tuiMutedStyle.Render(display.Truncate(m.prompt, width-8)))
	b.WriteString("\n\n")

	line := display.StatusLine(m.status)
	switch {
	case m.status.Phase == session.PhaseError:
		b.WriteString(tuiErrorStyle.Render(line))
	case m.done || m.status.Phase == session.PhaseStopped:
		b.WriteString(tuiOKStyle.Render(line))
	default:
		b.WriteString(m.spinner.View() + " " + line)
	}
	b.WriteString("\n")

	var rows []string
	for _, t := range m.sortedTiles() {
		label := display.ImageLabel(t.img)
		if t.size > 0 {
			label += "  " + display.Bytes(t.size)
		}
		row := shortTileID(t.img.ID) + " " + display.Truncate(label, width-9)
		if t.img.State == gallery.StateError {
			row = tuiErrorStyle.Render(row)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		rows = append(rows, tuiMutedStyle.Render("waiting for images…"))
	}
	b.WriteString(tuiPanelStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	for _, n := range m.notices {
		text := display.Truncate(n.Message, width)
		if n.Level == session.NoticeError {
			text = tuiErrorStyle.Render(text)
		}
		b.WriteString(text + "\n")
	}

	help := "q stop"
	if m.stopping && !m.done {
		help = "stopping…"
	}
	b.WriteString(tuiMutedStyle.Render(help))
	b.WriteString("\n")
	return b.String()
}

func shortTileID(id string) string {
	id = strings.TrimPrefix(id, gallery.LegacyKeyPrefix)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// tuiObserver forwards controller callbacks into the bubbletea program.
type tuiObserver struct {
	send func(tea.Msg)
}

func (o tuiObserver) ImageChanged(c gallery.Change) { o.send(imageMsg(c)) }
func (o tuiObserver) StatusChanged(s session.Status) { o.send(statusMsg(s)) }
func (o tuiObserver) Notify(n session.Notice)        { o.send(noticeMsg(n)) }

var newProgram = func(m tea.Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

// runTUI runs the controller under a full-screen view and returns once both
// have finished.
func runTUI(ctx context.Context, prompt string, opts session.Options, build func(session.Observer) *session.Controller) (*session.Controller, session.Summary, error) {
	var p *tea.Program
	controller := build(tuiObserver{send: func(msg tea.Msg) { p.Send(msg) }})
	p = newProgram(newRunModel(prompt, controller.Stop))

	type result struct {
		summary session.Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := controller.Run(ctx, opts)
		done <- result{summary, err}
		p.Send(runDoneMsg{summary: summary, err: err})
	}()

	if _, err := p.Run(); err != nil {
		controller.Stop()
		r := <-done
		if r.err == nil {
			r.err = fmt.Errorf("terminal view failed: %w", err)
		}
		return controller, r.summary, r.err
	}
	// The view may quit before the run ends, e.g. on a second key press.
	controller.Stop()
	r := <-done
	return controller, r.summary, r.err
}
