package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"tasksync/internal/events"
	"tasksync/internal/model"
	"tasksync/internal/repo"
	"tasksync/internal/store"
)

type flakyPatch struct {
	*store.Memory
	fail bool
}

func (f *flakyPatch) Patch(ctx context.Context, id string, fields store.Fields) (model.Task, error) {
	if f.fail {
		return model.Task{}, errors.New("offline")
	}
	return f.Memory.Patch(ctx, id, fields)
}

func TestJournalRecordsTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := &flakyPatch{Memory: store.NewMemory()}
	bus := events.NewBus()
	r := repo.New(backend, repo.Options{Bus: bus})
	defer r.Close()
	j := New(backend, bus, "lead", nil)
	j.Start()

	task, err := r.CreateTask(ctx, model.Task{Title: "Ship it"}, "lead")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	review := model.StatusReview
	if _, err := r.Mutate(ctx, task.ID, model.Patch{Status: &review}, "dev-1"); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	backend.fail = true
	done := model.StatusDone
	if _, err := r.Mutate(ctx, task.ID, model.Patch{Status: &done}, "dev-1"); err == nil {
		t.Fatalf("expected failing mutate")
	}
	backend.fail = false
	if err := r.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	j.Close()

	evs, err := backend.ListEvents(ctx, store.EventQuery{TaskID: task.ID})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	wantTypes := []string{TypeCreate, "task.mutate", TypeRollback, TypeDelete}
	if len(evs) != len(wantTypes) {
		t.Fatalf("expected %d events; got %+v", len(wantTypes), evs)
	}
	for i, ev := range evs {
		if ev.Type != wantTypes[i] {
			t.Fatalf("event %d: expected %s; got %s", i, wantTypes[i], ev.Type)
		}
		if ev.Seq != int64(i+1) {
			t.Fatalf("event %d: expected seq %d; got %d", i, i+1, ev.Seq)
		}
	}
	if evs[0].ActorID != "lead" || evs[1].ActorID != "dev-1" || evs[2].ActorID != "dev-1" || evs[3].ActorID != "lead" {
		t.Fatalf("unexpected actors: %s %s %s %s", evs[0].ActorID, evs[1].ActorID, evs[2].ActorID, evs[3].ActorID)
	}

	var commit struct {
		Changed []string        `json:"changed"`
		Status  [2]model.Status `json:"status"`
	}
	if err := json.Unmarshal(evs[1].Payload, &commit); err != nil {
		t.Fatalf("decode commit payload: %v", err)
	}
	if len(commit.Changed) != 1 || commit.Changed[0] != "status" || commit.Status != [2]model.Status{model.StatusNew, model.StatusReview} {
		t.Fatalf("unexpected commit payload: %s", evs[1].Payload)
	}

	var rb rollbackPayload
	if err := json.Unmarshal(evs[2].Payload, &rb); err != nil {
		t.Fatalf("decode rollback payload: %v", err)
	}
	if rb.Op != "mutate" || rb.Reason != "offline" {
		t.Fatalf("unexpected rollback payload: %+v", rb)
	}
}

// stalledLog blocks every append until release is closed.
type stalledLog struct {
	*store.Memory
	release chan struct{}
}

func (s *stalledLog) AppendEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	<-s.release
	return s.Memory.AppendEvent(ctx, ev)
}

func TestJournalPublishDoesNotWaitOnStore(t *testing.T) {
	ctx := context.Background()
	es := &stalledLog{Memory: store.NewMemory(), release: make(chan struct{})}
	bus := events.NewBus()
	j := New(es, bus, "lead", nil)
	j.Start()

	const n = 600
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < n; i++ {
			bus.Publish(events.TaskDeleted{TaskID: fmt.Sprintf("task-%d", i)})
		}
	}()
	select {
	case <-published:
	case <-time.After(5 * time.Second):
		t.Fatalf("publish blocked while the store was stalled")
	}

	close(es.release)
	j.Close()
	evs, err := j.List(ctx, store.EventQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evs) != n {
		t.Fatalf("expected %d entries after close; got %d", n, len(evs))
	}
}

func TestJournalIgnoresAfterClose(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemory()
	bus := events.NewBus()
	j := New(backend, bus, "lead", nil)
	j.Start()
	j.Close()
	j.Close()

	bus.Publish(events.TaskDeleted{TaskID: "task-x"})
	evs, err := j.List(ctx, store.EventQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("expected no events after close; got %+v", evs)
	}
}

func TestEntrySkipsUnrecordedEvents(t *testing.T) {
	if _, ok := Entry(events.MutationApplied{TaskID: "t1", Optimistic: true}, "lead"); ok {
		t.Fatalf("expected optimistic applies to be skipped")
	}
	if _, ok := Entry(events.NotificationCreated{}, "lead"); ok {
		t.Fatalf("expected notifications to be skipped")
	}
	ev, ok := Entry(events.MutationCommitted{TaskID: "t1", Op: "comment", ActingUser: "ana", Comment: &model.TaskComment{ID: "c1"}}, "lead")
	if !ok || ev.Type != "task.comment" || ev.ActorID != "ana" {
		t.Fatalf("unexpected comment entry: %+v", ev)
	}
}
