// Package notify turns committed task mutations into recipient-addressed notifications.
//
// The fanout hears only MutationCommitted, so nothing is ever sent for a change that
// could still be rolled back. Writes happen on a background worker and failures are
// logged; they never reach the mutation's caller.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tasksync/internal/events"
	"tasksync/internal/logging"
	"tasksync/internal/model"
	"tasksync/internal/statusutil"
	"tasksync/internal/store"

	"golang.org/x/sync/errgroup"
)

type Fanout struct {
	store store.NotificationStore
	bus   *events.Bus
	log   *logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]model.Notification
	busy    bool
	started bool
	closed  bool
	stopped chan struct{}
	cancel  func()
}

func New(ns store.NotificationStore, bus *events.Bus, log *logging.Logger) *Fanout {
	if log == nil {
		log = logging.Discard()
	}
	f := &Fanout{store: ns, bus: bus, log: log, stopped: make(chan struct{})}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Start subscribes to committed mutations and starts the write worker. Calling it
// more than once is a no-op.
func (f *Fanout) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return
	}
	f.started = true
	f.cancel = f.bus.Subscribe(f.onEvent, events.TypeMutationCommitted)
	go f.run()
}

func (f *Fanout) onEvent(e events.Event) {
	c, ok := e.(events.MutationCommitted)
	if !ok {
		return
	}
	batch := Derive(c)
	if len(batch) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.log.Errorf("fanout closed; dropping %d notifications for %s", len(batch), c.TaskID)
		return
	}
	f.queue = append(f.queue, batch)
	f.cond.Broadcast()
}

func (f *Fanout) run() {
	defer close(f.stopped)
	for {
		f.mu.Lock()
		for len(f.queue) == 0 && !f.closed {
			f.cond.Wait()
		}
		if len(f.queue) == 0 {
			f.mu.Unlock()
			return
		}
		batch := f.queue[0]
		f.queue = f.queue[1:]
		f.busy = true
		f.mu.Unlock()

		f.write(batch)

		f.mu.Lock()
		f.busy = false
		f.cond.Broadcast()
		f.mu.Unlock()
	}
}

// write stores one commit's notifications concurrently, then publishes the created
// ones in derivation order.
func (f *Fanout) write(batch []model.Notification) {
	created := make([]*model.Notification, len(batch))
	var g errgroup.Group
	for i, n := range batch {
		g.Go(func() error {
			got, err := f.store.CreateNotification(context.Background(), n)
			if err != nil {
				f.log.Errorf("notify %s (%s): %v", n.Recipient, n.TaskID, err)
				return err
			}
			created[i] = &got
			return nil
		})
	}
	_ = g.Wait()
	for _, n := range created {
		if n != nil {
			f.bus.Publish(events.NotificationCreated{Notification: *n})
		}
	}
}

// Flush blocks until every notification queued so far has been written (or failed).
func (f *Fanout) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return
	}
	for len(f.queue) > 0 || f.busy {
		f.cond.Wait()
	}
}

// Close unsubscribes, drains the queue and stops the worker.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	started := f.started
	cancel := f.cancel
	f.cond.Broadcast()
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-f.stopped
	}
}

// MarkRead flips a notification's read flag. Marking it twice is a no-op.
func (f *Fanout) MarkRead(ctx context.Context, id string) (model.Notification, error) {
	return f.store.MarkNotificationRead(ctx, strings.TrimSpace(id))
}

// List returns recipient's notifications, newest first.
func (f *Fanout) List(ctx context.Context, recipient string, unreadOnly bool) ([]model.Notification, error) {
	return f.store.ListNotifications(ctx, strings.TrimSpace(recipient), unreadOnly)
}

// Derive applies the fanout rules to one committed mutation: a new non-empty assignee
// is told about the assignment, the current assignee is told about a status change,
// and every user mentioned by an appended comment gets a mention.
func Derive(c events.MutationCommitted) []model.Notification {
	before, after := c.Before, c.After
	title := after.Title
	var out []model.Notification

	if c.Patch.Assignee != nil && after.Assignee != "" && after.Assignee != before.Assignee {
		out = append(out, model.Notification{
			Recipient: after.Assignee,
			Title:     "Task assigned",
			Message:   fmt.Sprintf("%s assigned you %q", c.ActingUser, title),
			Type:      model.NotificationTask,
			TaskID:    c.TaskID,
		})
	}
	if c.Patch.Status != nil && after.Status != before.Status && after.Assignee != "" {
		out = append(out, model.Notification{
			Recipient: after.Assignee,
			Title:     "Status changed",
			Message: fmt.Sprintf("%s moved %q from %s to %s", c.ActingUser, title,
				statusutil.Label(before.Status), statusutil.Label(after.Status)),
			Type:   model.NotificationTask,
			TaskID: c.TaskID,
		})
	}
	if c.Comment != nil {
		seen := map[string]bool{}
		for _, u := range c.Comment.Mentions {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, model.Notification{
				Recipient: u,
				Title:     "You were mentioned",
				Message:   fmt.Sprintf("%s mentioned you on %q", c.ActingUser, title),
				Type:      model.NotificationMention,
				TaskID:    c.TaskID,
			})
		}
	}
	return out
}
