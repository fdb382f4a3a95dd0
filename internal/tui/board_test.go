package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"tasksync/internal/model"
	"tasksync/internal/session"
	"tasksync/internal/store"
)

type failingPatch struct {
	*store.Memory
	fail bool
}

func (f *failingPatch) Patch(ctx context.Context, id string, fields store.Fields) (model.Task, error) {
	if f.fail {
		return model.Task{}, errors.New("connection reset")
	}
	return f.Memory.Patch(ctx, id, fields)
}

func newTestSession(t *testing.T, backend store.Backend) *session.Session {
	t.Helper()
	ctx := context.Background()
	s, err := session.Open(ctx, session.Options{User: "lead", Backend: backend})
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openBoard(t *testing.T, s *session.Session) *boardModel {
	t.Helper()
	m := newBoardModel(context.Background(), s)
	t.Cleanup(m.close)
	return m
}

func keyPress(m *boardModel, k tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	return cmd
}

func runeKey(m *boardModel, r rune) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	return cmd
}

// settle feeds the most recent board shape into the model, as the program loop would.
func settle(m *boardModel) {
	select {
	case cols := <-m.feed.ch:
		m.Update(columnsMsg(cols))
	default:
	}
}

func TestBoardDragMovesCardToNextColumn(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	task, err := s.Repo.CreateTask(context.Background(), model.Task{Title: "Ship it", Assignee: "dev-1"}, "lead")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	m := openBoard(t, s)

	if got := m.cols[0].Tasks; len(got) != 1 || got[0].ID != task.ID {
		t.Fatalf("expected task in first column; got %+v", got)
	}

	keyPress(m, tea.KeySpace)
	if m.drag == nil {
		t.Fatalf("expected drag after space")
	}
	keyPress(m, tea.KeyRight)
	st, idx, ok := m.drag.Target()
	if !ok || st != model.StatusInProgress || idx != 0 {
		t.Fatalf("unexpected target %s/%d/%v", st, idx, ok)
	}
	if !strings.Contains(m.View(), "» Ship it") {
		t.Fatalf("expected ghost card in view:\n%s", m.View())
	}

	cmd := keyPress(m, tea.KeyEnter)
	if cmd == nil {
		t.Fatalf("expected drop command")
	}
	msg := cmd()
	m.Update(msg)
	settle(m)

	got, _ := s.Repo.Get(task.ID)
	if got.Status != model.StatusInProgress {
		t.Fatalf("expected inProgress; got %s", got.Status)
	}
	if len(m.cols[1].Tasks) != 1 || len(m.cols[0].Tasks) != 0 {
		t.Fatalf("board did not follow the move: %+v", m.cols)
	}
	if !strings.Contains(m.flash, "moved") || m.flashErr {
		t.Fatalf("unexpected status line %q", m.flash)
	}
}

func TestBoardFailedDropRollsBack(t *testing.T) {
	backend := &failingPatch{Memory: store.NewMemory()}
	s := newTestSession(t, backend)
	task, err := s.Repo.CreateTask(context.Background(), model.Task{Title: "Flaky"}, "lead")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	m := openBoard(t, s)
	backend.fail = true

	keyPress(m, tea.KeySpace)
	keyPress(m, tea.KeyRight)
	keyPress(m, tea.KeyRight)
	m.Update(keyPress(m, tea.KeyEnter)())
	settle(m)

	got, _ := s.Repo.Get(task.ID)
	if got.Status != model.StatusNew {
		t.Fatalf("expected rollback to new; got %s", got.Status)
	}
	if !m.flashErr || !strings.Contains(m.flash, "rolled back") {
		t.Fatalf("expected rolled back message; got %q", m.flash)
	}
	if m.drag != nil {
		t.Fatalf("expected no active drag")
	}
}

func TestBoardEscCancelsWithoutMutation(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	task, err := s.Repo.CreateTask(context.Background(), model.Task{Title: "Stay"}, "lead")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	m := openBoard(t, s)

	keyPress(m, tea.KeySpace)
	keyPress(m, tea.KeyRight)
	keyPress(m, tea.KeyEsc)
	if m.drag != nil {
		t.Fatalf("expected drag cleared")
	}
	if cmd := keyPress(m, tea.KeyEnter); cmd != nil {
		t.Fatalf("expected no drop command after cancel")
	}
	got, _ := s.Repo.Get(task.ID)
	if got.Status != model.StatusNew || len(got.History) != 0 {
		t.Fatalf("expected untouched task; got %+v", got)
	}
}

func TestBoardReceivesExternalChanges(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	m := openBoard(t, s)
	if n := len(m.cols[0].Tasks); n != 0 {
		t.Fatalf("expected empty board; got %d", n)
	}
	if _, err := s.Repo.CreateTask(context.Background(), model.Task{Title: "Later"}, "lead"); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	settle(m)
	if n := len(m.cols[0].Tasks); n != 1 {
		t.Fatalf("expected new card on board; got %d", n)
	}
}

func TestBoardQuit(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	m := openBoard(t, s)
	cmd := runeKey(m, 'q')
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}
