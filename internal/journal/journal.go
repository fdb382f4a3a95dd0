// Package journal keeps the local event log of a session: one entry per confirmed
// create, commit, rollback and delete, appended off the mutation path.
package journal

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"tasksync/internal/events"
	"tasksync/internal/logging"
	"tasksync/internal/model"
	"tasksync/internal/store"
)

const (
	TypeCreate   = "task.create"
	TypeRollback = "task.rollback"
	TypeDelete   = "task.delete"
)

// Commits are "task." + the repository op: task.mutate, task.comment or task.attach.
const typeCommitPrefix = "task."

type Journal struct {
	store store.EventLog
	bus   *events.Bus
	actor string
	log   *logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []model.Event
	started bool
	closed  bool
	cancel  func()
	done    chan struct{}
}

// New builds a journal over es. actor is recorded for events that carry no acting
// user of their own (deletes).
func New(es store.EventLog, bus *events.Bus, actor string, log *logging.Logger) *Journal {
	if log == nil {
		log = logging.Discard()
	}
	j := &Journal{
		store: es,
		bus:   bus,
		actor: strings.TrimSpace(actor),
		log:   log,
		done:  make(chan struct{}),
	}
	j.cond = sync.NewCond(&j.mu)
	return j
}

// Start subscribes to the bus and starts the append worker. Calling it more than once
// is a no-op.
func (j *Journal) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started || j.closed {
		return
	}
	j.started = true
	j.cancel = j.bus.Subscribe(j.onEvent,
		events.TypeTaskCreated, events.TypeMutationCommitted, events.TypeMutationRolledBack, events.TypeTaskDeleted)
	go j.run()
}

// onEvent only queues; the publisher never waits on the store.
func (j *Journal) onEvent(e events.Event) {
	ev, ok := Entry(e, j.actor)
	if !ok {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		j.log.Errorf("journal closed; dropping %s %s", ev.Type, ev.TaskID)
		return
	}
	j.queue = append(j.queue, ev)
	j.cond.Broadcast()
}

func (j *Journal) run() {
	defer close(j.done)
	for {
		j.mu.Lock()
		for len(j.queue) == 0 && !j.closed {
			j.cond.Wait()
		}
		if len(j.queue) == 0 {
			j.mu.Unlock()
			return
		}
		ev := j.queue[0]
		j.queue = j.queue[1:]
		j.mu.Unlock()

		if _, err := j.store.AppendEvent(context.Background(), ev); err != nil {
			j.log.Errorf("journal %s %s: %v", ev.Type, ev.TaskID, err)
		}
	}
}

// Close unsubscribes and waits for queued entries to be written.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	started := j.started
	cancel := j.cancel
	j.cond.Broadcast()
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-j.done
	}
}

// List returns journal entries oldest first.
func (j *Journal) List(ctx context.Context, q store.EventQuery) ([]model.Event, error) {
	return j.store.ListEvents(ctx, q)
}

type createPayload struct {
	Title    string         `json:"title"`
	Status   model.Status   `json:"status"`
	Priority model.Priority `json:"priority"`
	Assignee string         `json:"assignee,omitempty"`
}

type commitPayload struct {
	Patch      model.Patch      `json:"patch"`
	Comment    string           `json:"commentId,omitempty"`
	Attachment string           `json:"attachment,omitempty"`
	Changed    []string         `json:"changed,omitempty"`
	Status     *[2]model.Status `json:"status,omitempty"`
}

type rollbackPayload struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

// Entry maps a bus event to its journal entry. Events the journal does not record
// return false.
func Entry(e events.Event, actor string) (model.Event, bool) {
	switch ev := e.(type) {
	case events.TaskCreated:
		return entry(ev.Task.ID, TypeCreate, firstNonEmpty(ev.ActingUser, actor), createPayload{
			Title:    ev.Task.Title,
			Status:   ev.Task.Status,
			Priority: ev.Task.Priority,
			Assignee: ev.Task.Assignee,
		}), true

	case events.MutationCommitted:
		p := commitPayload{Patch: ev.Patch}
		if ev.Comment != nil {
			p.Comment = ev.Comment.ID
		}
		if n := len(ev.After.Attachments); n > len(ev.Before.Attachments) {
			p.Attachment = ev.After.Attachments[n-1].Name
		}
		for _, h := range newHistory(ev.Before, ev.After) {
			p.Changed = append(p.Changed, h.Field)
		}
		if ev.Before.Status != ev.After.Status {
			p.Status = &[2]model.Status{ev.Before.Status, ev.After.Status}
		}
		op := firstNonEmpty(ev.Op, "mutate")
		return entry(ev.TaskID, typeCommitPrefix+op, firstNonEmpty(ev.ActingUser, actor), p), true

	case events.MutationRolledBack:
		reason := ""
		if ev.Reason != nil {
			reason = ev.Reason.Error()
		}
		return entry(ev.TaskID, TypeRollback, firstNonEmpty(ev.ActingUser, actor), rollbackPayload{Op: ev.Op, Reason: reason}), true

	case events.TaskDeleted:
		return entry(ev.TaskID, TypeDelete, actor, nil), true
	}
	return model.Event{}, false
}

func entry(taskID, typ, actor string, payload any) model.Event {
	ev := model.Event{TaskID: taskID, Type: typ, ActorID: actor}
	if payload != nil {
		// The payload types above always marshal.
		b, _ := json.Marshal(payload)
		ev.Payload = b
	}
	return ev
}

// newHistory returns the history entries after gained over before.
func newHistory(before, after model.Task) []model.TaskHistoryEntry {
	if len(after.History) <= len(before.History) {
		return nil
	}
	return after.History[len(before.History):]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
