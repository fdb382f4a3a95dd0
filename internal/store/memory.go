package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"tasksync/internal/model"
	"tasksync/internal/taskerr"
)

// Memory is an in-process Backend. Documents are kept encoded so callers never share
// memory with the stored copy, the same as with a remote store.
type Memory struct {
	mu            sync.RWMutex
	tasks         map[string][]byte
	notifications map[string][]byte
	events        []model.Event
	eventSeq      map[string]int64
	clock         *serverClock
}

func NewMemory() *Memory {
	return NewMemoryWithClock(nil)
}

// NewMemoryWithClock uses now as the server clock (tests pin it).
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		tasks:         map[string][]byte{},
		notifications: map[string][]byte{},
		eventSeq:      map[string]int64{},
		clock:         newServerClock(now),
	}
}

func (m *Memory) Now(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return m.clock.Now(), nil
}

func (m *Memory) Fetch(ctx context.Context, id string) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.tasks[id]
	if !ok {
		return model.Task{}, taskerr.NotFoundError{Kind: "task", ID: id}
	}
	return decodeTask(b)
}

func (m *Memory) Query(ctx context.Context, q Query) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all := make([]model.Task, 0, len(m.tasks))
	for _, b := range m.tasks {
		t, err := decodeTask(b)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		all = append(all, t)
	}
	m.mu.RUnlock()
	return Apply(all, q), nil
}

func (m *Memory) Create(ctx context.Context, t model.Task) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := newUniqueID("task", func(id string) (bool, error) {
		_, ok := m.tasks[id]
		return ok, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	now := m.clock.Now()
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	b, err := encodeTask(t)
	if err != nil {
		return model.Task{}, err
	}
	m.tasks[id] = b
	return decodeTask(b)
}

func (m *Memory) Patch(ctx context.Context, id string, fields Fields) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.tasks[id]
	if !ok {
		return model.Task{}, taskerr.NotFoundError{Kind: "task", ID: id}
	}
	cur, err := decodeTask(b)
	if err != nil {
		return model.Task{}, err
	}
	next, err := applyFields(cur, fields)
	if err != nil {
		return model.Task{}, err
	}
	next.UpdatedAt = m.clock.Now()
	out, err := encodeTask(next)
	if err != nil {
		return model.Task{}, err
	}
	m.tasks[id] = out
	return decodeTask(out)
}

func (m *Memory) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return taskerr.NotFoundError{Kind: "task", ID: id}
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return model.Notification{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(n.ID) == "" {
		id, err := newUniqueID("ntf", func(id string) (bool, error) {
			_, ok := m.notifications[id]
			return ok, nil
		})
		if err != nil {
			return model.Notification{}, err
		}
		n.ID = id
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.clock.Now()
	}
	b, err := json.Marshal(n)
	if err != nil {
		return model.Notification{}, err
	}
	m.notifications[n.ID] = b
	return n, nil
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id string) (model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return model.Notification{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.notifications[id]
	if !ok {
		return model.Notification{}, taskerr.NotFoundError{Kind: "notification", ID: id}
	}
	var n model.Notification
	if err := json.Unmarshal(b, &n); err != nil {
		return model.Notification{}, err
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	out, err := json.Marshal(n)
	if err != nil {
		return model.Notification{}, err
	}
	m.notifications[id] = out
	return n, nil
}

func (m *Memory) ListNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Notification{}
	for _, b := range m.notifications {
		var n model.Notification
		if err := json.Unmarshal(b, &n); err != nil {
			return nil, err
		}
		if n.Recipient != recipient || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sortNotifications(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

// sortNotifications orders newest first, id ascending on ties.
func sortNotifications(ns []model.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].ID < ns[j].ID
	})
}
