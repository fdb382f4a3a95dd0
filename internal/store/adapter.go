// Package store is the persistence side of the task core: the document-store adapter
// contract, its in-memory and SQLite backends, and the global CLI config.
package store

import (
	"context"
	"time"

	"tasksync/internal/model"
)

// Fields is a partial document update keyed by JSON field name.
// A nil value removes the field from the document.
type Fields map[string]any

// Adapter is the narrow CRUD+query facade over the remote task store.
//
// The store is the system of record. It assigns ids and createdAt/updatedAt on Create,
// and updatedAt on every Patch. A missing id yields a taskerr.NotFoundError.
type Adapter interface {
	Fetch(ctx context.Context, id string) (model.Task, error)
	Query(ctx context.Context, q Query) ([]model.Task, error)
	Create(ctx context.Context, t model.Task) (model.Task, error)
	Patch(ctx context.Context, id string, fields Fields) (model.Task, error)
	Remove(ctx context.Context, id string) error
	// Now is the server-authoritative clock.
	Now(ctx context.Context) (time.Time, error)
}

// NotificationStore is the notification collection of the same backend.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
	// MarkNotificationRead flips the read flag. Marking an already-read notification is a no-op.
	MarkNotificationRead(ctx context.Context, id string) (model.Notification, error)
	// ListNotifications returns a recipient's notifications, newest first.
	ListNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]model.Notification, error)
}

// EventQuery selects journal entries. Limit keeps the newest entries (0 = all).
type EventQuery struct {
	TaskID string
	Limit  int
}

// EventLog is the append-only journal of task changes.
type EventLog interface {
	// AppendEvent assigns the id, the next per-task seq and (when unset) the timestamp.
	AppendEvent(ctx context.Context, ev model.Event) (model.Event, error)
	// ListEvents returns entries oldest first.
	ListEvents(ctx context.Context, q EventQuery) ([]model.Event, error)
}

// Backend bundles every collection of one store.
type Backend interface {
	Adapter
	NotificationStore
	EventLog
	Close() error
}
