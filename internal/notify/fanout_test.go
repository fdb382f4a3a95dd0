package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"tasksync/internal/events"
	"tasksync/internal/logging"
	"tasksync/internal/model"
	"tasksync/internal/repo"
	"tasksync/internal/store"
)

func strPtr(s string) *string                { return &s }
func statusPtr(s model.Status) *model.Status { return &s }

// failingAdapter fails every Patch; used to drive the rollback path.
type failingAdapter struct {
	*store.Memory
}

func (failingAdapter) Patch(context.Context, string, store.Fields) (model.Task, error) {
	return model.Task{}, errors.New("offline")
}

// brokenNotifications fails every notification write.
type brokenNotifications struct {
	store.NotificationStore
	mu    sync.Mutex
	tries int
}

func (b *brokenNotifications) CreateNotification(context.Context, model.Notification) (model.Notification, error) {
	b.mu.Lock()
	b.tries++
	b.mu.Unlock()
	return model.Notification{}, errors.New("quota exceeded")
}

func setup(t *testing.T) (*repo.Repository, *store.Memory, *Fanout) {
	t.Helper()
	mem := store.NewMemory()
	bus := events.NewBus()
	r := repo.New(mem, repo.Options{Bus: bus})
	f := New(mem, bus, nil)
	f.Start()
	t.Cleanup(func() {
		f.Close()
		r.Close()
	})
	return r, mem, f
}

func TestFanout_ReassignmentNotifiesOnlyNewAssignee(t *testing.T) {
	r, _, f := setup(t)
	ctx := context.Background()
	task, err := r.CreateTask(ctx, model.Task{Title: "Pay invoice", Assignee: "user-7"}, "boss")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := r.Mutate(ctx, task.ID, model.Patch{Assignee: strPtr("user-42")}, "boss"); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	f.Flush()

	got, err := f.List(ctx, "user-42", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Type != model.NotificationTask || got[0].TaskID != task.ID || got[0].Read {
		t.Fatalf("expected one unread task notification for user-42; got %+v", got)
	}
	old, err := f.List(ctx, "user-7", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected nothing for the previous assignee; got %+v", old)
	}
}

func TestFanout_RollbackSendsNothing(t *testing.T) {
	mem := store.NewMemory()
	bus := events.NewBus()
	r := repo.New(failingAdapter{mem}, repo.Options{Bus: bus})
	f := New(mem, bus, nil)
	f.Start()
	defer f.Close()

	ctx := context.Background()
	task, err := r.CreateTask(ctx, model.Task{Title: "x", Assignee: "u1"}, "u1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := r.Mutate(ctx, task.ID, model.Patch{Status: statusPtr(model.StatusDone)}, "u2"); err == nil {
		t.Fatalf("expected the mutation to fail")
	}
	f.Flush()
	got, _ := f.List(ctx, "u1", false)
	if len(got) != 0 {
		t.Fatalf("expected no notification for a rolled-back change; got %+v", got)
	}
}

func TestFanout_WriteFailureIsLoggedNotReturned(t *testing.T) {
	mem := store.NewMemory()
	bus := events.NewBus()
	var logs bytes.Buffer
	broken := &brokenNotifications{NotificationStore: mem}
	r := repo.New(mem, repo.Options{Bus: bus})
	f := New(broken, bus, logging.New(&logs, logging.LevelInfo))
	f.Start()
	defer f.Close()

	ctx := context.Background()
	task, err := r.CreateTask(ctx, model.Task{Title: "x"}, "u1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	got, err := r.Mutate(ctx, task.ID, model.Patch{Assignee: strPtr("u9")}, "u1")
	if err != nil {
		t.Fatalf("expected the mutation to succeed despite fanout failure; got %v", err)
	}
	f.Flush()
	if got.Assignee != "u9" {
		t.Fatalf("expected committed assignee; got %q", got.Assignee)
	}
	if broken.tries != 1 {
		t.Fatalf("expected one write attempt; got %d", broken.tries)
	}
	if !strings.Contains(logs.String(), "quota exceeded") {
		t.Fatalf("expected failure logged; got %q", logs.String())
	}
}

func TestFanout_PublishesNotificationCreated(t *testing.T) {
	r, _, f := setup(t)
	ctx := context.Background()

	var mu sync.Mutex
	var created []model.Notification
	r.Bus().Subscribe(func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		created = append(created, e.(events.NotificationCreated).Notification)
	}, events.TypeNotificationCreated)

	task, err := r.CreateTask(ctx, model.Task{Title: "Review PR", Assignee: "u2"}, "u1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := r.AddComment(ctx, task.ID, "thoughts @u3 @u4?", []string{"u3", "u4"}, "u1"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	f.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(created) != 2 || created[0].Recipient != "u3" || created[1].Recipient != "u4" {
		t.Fatalf("expected mention notifications for u3 then u4; got %+v", created)
	}
	for _, n := range created {
		if n.ID == "" || n.Type != model.NotificationMention {
			t.Fatalf("unexpected notification: %+v", n)
		}
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	r, _, f := setup(t)
	ctx := context.Background()
	task, _ := r.CreateTask(ctx, model.Task{Title: "x"}, "u1")
	if _, err := r.Mutate(ctx, task.ID, model.Patch{Assignee: strPtr("u5")}, "u1"); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	f.Flush()
	list, _ := f.List(ctx, "u5", true)
	if len(list) != 1 {
		t.Fatalf("expected one unread; got %+v", list)
	}
	for i := 0; i < 2; i++ {
		n, err := f.MarkRead(ctx, list[0].ID)
		if err != nil || !n.Read {
			t.Fatalf("MarkRead #%d: %+v, %v", i+1, n, err)
		}
	}
	unread, _ := f.List(ctx, "u5", true)
	if len(unread) != 0 {
		t.Fatalf("expected no unread notifications; got %+v", unread)
	}
}

func TestDerive_Rules(t *testing.T) {
	before := model.Task{ID: "t1", Title: "Deploy", Assignee: "a", Status: model.StatusNew}

	cases := []struct {
		name  string
		patch model.Patch
		after func(model.Task) model.Task
		want  []string // recipient:type
	}{
		{
			name:  "same assignee",
			patch: model.Patch{Assignee: strPtr("a")},
			after: func(t model.Task) model.Task { return t },
		},
		{
			name:  "unassigned",
			patch: model.Patch{Assignee: strPtr("")},
			after: func(t model.Task) model.Task { t.Assignee = ""; return t },
		},
		{
			name:  "status to current assignee",
			patch: model.Patch{Status: statusPtr(model.StatusReview)},
			after: func(t model.Task) model.Task { t.Status = model.StatusReview; return t },
			want:  []string{"a:task"},
		},
		{
			name:  "status unchanged",
			patch: model.Patch{Status: statusPtr(model.StatusNew)},
			after: func(t model.Task) model.Task { return t },
		},
		{
			name:  "reassign and move",
			patch: model.Patch{Assignee: strPtr("b"), Status: statusPtr(model.StatusDone)},
			after: func(t model.Task) model.Task { t.Assignee = "b"; t.Status = model.StatusDone; return t },
			want:  []string{"b:task", "b:task"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Derive(events.MutationCommitted{TaskID: "t1", Patch: tc.patch, ActingUser: "x", Before: before, After: tc.after(before)})
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v; got %+v", tc.want, got)
			}
			for i, w := range tc.want {
				if k := got[i].Recipient + ":" + string(got[i].Type); k != w {
					t.Fatalf("entry %d: expected %s; got %s", i, w, k)
				}
			}
		})
	}
}
