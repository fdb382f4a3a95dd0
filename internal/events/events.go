// Package events is the in-process bus for repository and fanout events.
//
// Delivery is synchronous, in publish order, on the publisher's goroutine. Handlers that
// need to do slow work (remote writes) must hand it off themselves.
package events

import (
	"sync"

	"tasksync/internal/model"
)

type Type string

const (
	TypeMutationApplied     Type = "mutation-applied"
	TypeMutationRolledBack  Type = "mutation-rolled-back"
	TypeMutationCommitted   Type = "mutation-committed"
	TypeNotificationCreated Type = "notification-created"
	TypeTaskCreated         Type = "task-created"
	TypeTaskDeleted         Type = "task-deleted"
)

type Event interface {
	EventType() Type
}

// MutationApplied fires after the cache took a new copy of a task: optimistically
// before the remote call, or with the authoritative copy after it.
type MutationApplied struct {
	TaskID     string
	Optimistic bool
}

type MutationRolledBack struct {
	TaskID     string
	Op         string
	ActingUser string
	Reason     error
}

// MutationCommitted fires only after remote confirmation.
type MutationCommitted struct {
	TaskID string
	// Op is the repository operation: "mutate", "comment" or "attach".
	Op         string
	Patch      model.Patch
	ActingUser string
	Before     model.Task
	After      model.Task
	// Comment is set when the committed change appended a comment.
	Comment *model.TaskComment
}

type NotificationCreated struct {
	Notification model.Notification
}

// TaskCreated and TaskDeleted fire after the store confirmed the pessimistic write.
type TaskCreated struct {
	Task       model.Task
	ActingUser string
}

type TaskDeleted struct {
	TaskID string
}

func (MutationApplied) EventType() Type     { return TypeMutationApplied }
func (MutationRolledBack) EventType() Type  { return TypeMutationRolledBack }
func (MutationCommitted) EventType() Type   { return TypeMutationCommitted }
func (NotificationCreated) EventType() Type { return TypeNotificationCreated }
func (TaskCreated) EventType() Type         { return TypeTaskCreated }
func (TaskDeleted) EventType() Type         { return TypeTaskDeleted }

type Handler func(Event)

type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]subscription
	order    []int
}

type subscription struct {
	types   map[Type]bool // empty: every type
	handler Handler
}

func NewBus() *Bus {
	return &Bus{handlers: map[int]subscription{}}
}

// Subscribe registers h for the given types (all types when none are given).
// The returned cancel func is idempotent.
func (b *Bus) Subscribe(h Handler, types ...Type) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := subscription{types: map[Type]bool{}, handler: h}
	for _, t := range types {
		sub.types[t] = true
	}
	b.handlers[id] = sub
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to matching handlers in subscription order.
func (b *Bus) Publish(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		sub, ok := b.handlers[id]
		if !ok {
			continue
		}
		if len(sub.types) > 0 && !sub.types[ev.EventType()] {
			continue
		}
		hs = append(hs, sub.handler)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}
