package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tasksync/internal/drag"
	"tasksync/internal/journal"
	"tasksync/internal/model"
	"tasksync/internal/store"
	"tasksync/internal/taskerr"
	"tasksync/internal/views"
)

func TestDragCommitEndToEnd(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tasks.sqlite")

	s, err := Open(ctx, Options{User: "lead", BackendName: store.BackendSQLite, DBPath: dbPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	task, err := s.Repo.CreateTask(ctx, model.Task{Title: "Write release notes", Assignee: "dev-1"}, "lead")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	var boards [][]views.Column
	unsub := views.Subscribe(s.Repo, views.ByStatus, func(cols []views.Column) { boards = append(boards, cols) })
	defer unsub()

	sess, err := s.Drag.PickUp(task.ID, model.StatusNew, 0)
	if err != nil {
		t.Fatalf("PickUp: %v", err)
	}
	if err := sess.Over(model.StatusReview, 0); err != nil {
		t.Fatalf("Over: %v", err)
	}
	out, err := sess.Drop(ctx)
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if out.Kind != drag.OutcomeMoved {
		t.Fatalf("expected moved; got %s", out.Kind)
	}
	s.Fanout.Flush()

	got, ok := s.Repo.Get(task.ID)
	if !ok || got.Status != model.StatusReview {
		t.Fatalf("expected cached status review; got %+v", got)
	}
	if len(got.History) != 1 || got.History[0].Field != "status" || got.History[0].OldValue != "new" || got.History[0].NewValue != "review" {
		t.Fatalf("expected one status history entry; got %+v", got.History)
	}

	ns, err := s.Fanout.List(ctx, "dev-1", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ns) != 1 || ns[0].Type != model.NotificationTask || ns[0].TaskID != task.ID {
		t.Fatalf("expected one transition notification to dev-1; got %+v", ns)
	}

	// Initial shape, then the optimistic move, then the confirmed copy.
	if len(boards) < 2 {
		t.Fatalf("expected the board to see the move; got %d deliveries", len(boards))
	}
	last := boards[len(boards)-1]
	if len(last[0].Tasks) != 0 || len(last[2].Tasks) != 1 || last[2].Tasks[0].ID != task.ID {
		t.Fatalf("expected the card in the review column; got %+v", last)
	}

	// A fresh session against the same file sees the persisted state.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s2, err := Open(ctx, Options{User: "lead", BackendName: store.BackendSQLite, DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	again, ok := s2.Repo.Get(task.ID)
	if !ok || again.Status != model.StatusReview || len(again.History) != 1 {
		t.Fatalf("expected persisted status and history; got %+v", again)
	}
	evs, err := s2.Journal.List(ctx, store.EventQuery{TaskID: task.ID})
	if err != nil {
		t.Fatalf("Journal.List: %v", err)
	}
	if len(evs) != 2 || evs[0].Type != journal.TypeCreate || evs[1].Type != "task.mutate" || evs[1].ActorID != "lead" {
		t.Fatalf("expected create then mutate in the journal; got %+v", evs)
	}
}

func TestOpen_RequiresUser(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: store.NewMemory()})
	if !errors.Is(err, taskerr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument; got %v", err)
	}
}

func TestClose_LeavesInjectedBackendOpen(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s, err := Open(ctx, Options{User: "u1", Backend: mem})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Repo.CreateTask(ctx, model.Task{Title: "x"}, "u1"); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if n := len(s.Repo.Tasks()); n != 0 {
		t.Fatalf("expected cache dropped on close; got %d", n)
	}
	tasks, err := mem.Query(ctx, store.Query{})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected injected backend still usable; got %d tasks, %v", len(tasks), err)
	}
}
