package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"tasksync/internal/drag"
	"tasksync/internal/model"
	"tasksync/internal/session"
	"tasksync/internal/statusutil"
	"tasksync/internal/taskerr"
	"tasksync/internal/views"
)

// columnsMsg carries the latest board shape from the view subscription.
type columnsMsg []views.Column

type dropResultMsg struct {
	outcome drag.Outcome
	err     error
}

// latestColumns is a one-slot mailbox: a newer shape replaces an unread older one,
// so the repository's write path never blocks on the UI.
type latestColumns struct {
	mu sync.Mutex
	ch chan []views.Column
}

func newLatestColumns() *latestColumns {
	return &latestColumns{ch: make(chan []views.Column, 1)}
}

func (l *latestColumns) push(cols []views.Column) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.ch:
	default:
	}
	l.ch <- cols
}

func (l *latestColumns) wait() tea.Cmd {
	return func() tea.Msg { return columnsMsg(<-l.ch) }
}

type boardModel struct {
	ctx  context.Context
	sess *session.Session
	keys keyMap
	help help.Model

	feed  *latestColumns
	unsub func()

	cols []views.Column
	col  int
	row  int

	drag     *drag.Session
	dragFrom model.Status

	flash    string
	flashErr bool

	width  int
	height int
}

func newBoardModel(ctx context.Context, s *session.Session) *boardModel {
	m := &boardModel{
		ctx:  ctx,
		sess: s,
		keys: defaultKeyMap(),
		help: help.New(),
		feed: newLatestColumns(),
	}
	m.unsub = views.Subscribe(s.Repo, views.ByStatus, m.feed.push)
	m.cols = <-m.feed.ch
	return m
}

func (m *boardModel) Init() tea.Cmd {
	return m.feed.wait()
}

func (m *boardModel) close() {
	if m.unsub != nil {
		m.unsub()
	}
}

// column returns the display order of column i.
func (m *boardModel) column(i int) []model.Task {
	if i < 0 || i >= len(m.cols) {
		return nil
	}
	c := m.cols[i]
	return m.sess.Drag.Arrange(c.Status, c.Tasks)
}

func (m *boardModel) selected() (model.Task, bool) {
	tasks := m.column(m.col)
	if m.row < 0 || m.row >= len(tasks) {
		return model.Task{}, false
	}
	return tasks[m.row], true
}

func (m *boardModel) clampCursor() {
	if m.col >= len(m.cols) {
		m.col = len(m.cols) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	limit := len(m.column(m.col)) - 1
	if m.drag != nil {
		// While dragging the cursor may sit one past the end (drop at the bottom).
		limit++
		if st := m.cols[m.col].Status; st == m.dragFrom {
			limit--
		}
	}
	if m.row > limit {
		m.row = limit
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m *boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case columnsMsg:
		m.cols = msg
		m.clampCursor()
		return m, m.feed.wait()

	case dropResultMsg:
		switch {
		case msg.err != nil && errors.Is(msg.err, taskerr.ErrSyncFailed):
			m.flash, m.flashErr = fmt.Sprintf("move of %s failed, rolled back: %v", msg.outcome.Task.ID, msg.err), true
		case msg.err != nil:
			m.flash, m.flashErr = msg.err.Error(), true
		case msg.outcome.Kind == drag.OutcomeMoved:
			m.flash, m.flashErr = fmt.Sprintf("moved %s to %s", msg.outcome.Task.ID, statusutil.Label(msg.outcome.Task.Status)), false
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m *boardModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.drag != nil {
			m.drag.Cancel()
			m.drag = nil
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Left):
		m.col--
		m.clampCursor()
		m.hover()
		return m, nil
	case key.Matches(msg, m.keys.Right):
		m.col++
		m.clampCursor()
		m.hover()
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.row--
		m.clampCursor()
		m.hover()
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.row++
		m.clampCursor()
		m.hover()
		return m, nil
	case key.Matches(msg, m.keys.PickUp):
		return m, m.pickUp()
	case key.Matches(msg, m.keys.Drop):
		return m, m.drop()
	case key.Matches(msg, m.keys.Cancel):
		if m.drag != nil {
			m.drag.Cancel()
			m.drag = nil
			m.flash, m.flashErr = "drag cancelled", false
			m.clampCursor()
		}
		return m, nil
	}
	return m, nil
}

func (m *boardModel) pickUp() tea.Cmd {
	if m.drag != nil {
		return nil
	}
	t, ok := m.selected()
	if !ok {
		return nil
	}
	s, err := m.sess.Drag.PickUp(t.ID, t.Status, m.row)
	if err != nil {
		m.flash, m.flashErr = err.Error(), true
		return nil
	}
	m.drag, m.dragFrom = s, t.Status
	m.flash = ""
	m.hover()
	return nil
}

func (m *boardModel) hover() {
	if m.drag == nil || m.col >= len(m.cols) {
		return
	}
	_ = m.drag.Over(m.cols[m.col].Status, m.row)
}

// drop ends the gesture. The status mutation runs as a command so the board keeps
// rendering the optimistic state while the store round-trips.
func (m *boardModel) drop() tea.Cmd {
	s := m.drag
	if s == nil {
		return nil
	}
	m.drag = nil
	ctx := m.ctx
	return func() tea.Msg {
		out, err := s.Drop(ctx)
		return dropResultMsg{outcome: out, err: err}
	}
}

func (m *boardModel) View() string {
	if len(m.cols) == 0 {
		return "loading…"
	}
	colW := 24
	if m.width > 0 {
		colW = max(16, m.width/len(m.cols)-4)
	}

	targetStatus, targetIdx, hasTarget := model.Status(""), 0, false
	dragID := ""
	if m.drag != nil {
		targetStatus, targetIdx, hasTarget = m.drag.Target()
		dragID = m.drag.TaskID()
	}

	rendered := make([]string, 0, len(m.cols))
	for i, c := range m.cols {
		tasks := m.column(i)
		lines := []string{styleColumnHead.Render(fmt.Sprintf("%s (%d)", statusutil.Label(c.Status), len(tasks)))}
		ghost := ""
		if hasTarget && c.Status == targetStatus {
			if t, ok := m.sess.Repo.Get(dragID); ok {
				ghost = styleGhost.Render("» " + xansi.Truncate(t.Title, colW-2, "…"))
			}
		}
		// pos counts cards other than the dragged one, matching drop indexes.
		pos := 0
		for j, t := range tasks {
			if t.ID == dragID {
				lines = append(lines, styleMuted.Render(xansi.Truncate(priorityGlyph(t.Priority)+t.Title, colW, "…")))
				continue
			}
			if ghost != "" && pos == targetIdx {
				lines = append(lines, ghost)
				ghost = ""
			}
			line := priorityGlyph(t.Priority) + xansi.Truncate(t.Title, colW-2, "…")
			if t.Assignee != "" {
				line += styleMuted.Render(" @" + t.Assignee)
			}
			line = xansi.Truncate(line, colW, "…")
			if m.drag == nil && i == m.col && j == m.row {
				line = styleSelected.Render(line)
			}
			lines = append(lines, line)
			pos++
		}
		if ghost != "" {
			lines = append(lines, ghost)
		}

		st := styleColumn
		switch {
		case hasTarget && c.Status == targetStatus:
			st = styleColumnTarget
		case i == m.col:
			st = styleColumnFocused
		}
		rendered = append(rendered, st.Width(colW).Render(strings.Join(lines, "\n")))
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	b.WriteString("\n")
	if m.flash != "" {
		if m.flashErr {
			b.WriteString(styleError.Render(m.flash))
		} else {
			b.WriteString(styleMuted.Render(m.flash))
		}
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
