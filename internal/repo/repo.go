// Package repo owns the session's task cache and is the single point of mutation for tasks.
//
// Field edits are optimistic: the cache takes the new value and listeners hear about it
// before the adapter is called, and a failed remote write puts the old snapshot back.
// Creation and deletion are pessimistic: the cache changes only after the adapter confirms.
package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tasksync/internal/events"
	"tasksync/internal/history"
	"tasksync/internal/logging"
	"tasksync/internal/model"
	"tasksync/internal/store"
	"tasksync/internal/taskerr"

	"github.com/google/uuid"
)

// Listener receives the full cached collection (sorted by id) after every cache change.
// Listeners run synchronously inside the write and may read the repository, but must
// not call its write methods from the same goroutine.
type Listener = func(tasks []model.Task)

type Options struct {
	Recorder *history.Recorder
	Bus      *events.Bus
	Logger   *logging.Logger
	// NewID generates comment/attachment ids; defaults to random UUIDs.
	NewID func() string
}

type Repository struct {
	adapter  store.Adapter
	recorder *history.Recorder
	bus      *events.Bus
	log      *logging.Logger
	newID    func() string

	// writeMu orders cache writes together with their listener delivery.
	writeMu sync.Mutex

	historyLocks taskLocks

	mu    sync.RWMutex
	tasks map[string]model.Task

	lmu       sync.Mutex
	nextL     int
	listeners map[int]Listener
	lorder    []int
}

func New(adapter store.Adapter, opts Options) *Repository {
	r := &Repository{
		adapter:   adapter,
		recorder:  opts.Recorder,
		bus:       opts.Bus,
		log:       opts.Logger,
		newID:     opts.NewID,
		tasks:     map[string]model.Task{},
		listeners: map[int]Listener{},
	}
	if r.recorder == nil {
		r.recorder = history.NewRecorder()
	}
	if r.bus == nil {
		r.bus = events.NewBus()
	}
	if r.log == nil {
		r.log = logging.Discard()
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

func (r *Repository) Bus() *events.Bus { return r.bus }

// OnChange registers l for cache changes. The returned cancel func is idempotent and
// takes effect for every delivery that starts after it returns.
func (r *Repository) OnChange(l Listener) (cancel func()) {
	r.lmu.Lock()
	id := r.nextL
	r.nextL++
	r.listeners[id] = l
	r.lorder = append(r.lorder, id)
	r.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.lmu.Lock()
			defer r.lmu.Unlock()
			delete(r.listeners, id)
			for i, v := range r.lorder {
				if v == id {
					r.lorder = append(r.lorder[:i:i], r.lorder[i+1:]...)
					break
				}
			}
		})
	}
}

// Get returns the cached copy of a task.
func (r *Repository) Get(id string) (model.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[strings.TrimSpace(id)]
	return t, ok
}

// Tasks returns a snapshot of the cache sorted by id.
func (r *Repository) Tasks() []model.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// List filters and sorts the cache without a remote call.
func (r *Repository) List(f store.Filter, s store.Sort) []model.Task {
	return store.Apply(r.Tasks(), store.Query{Filter: f, Sort: s})
}

func (r *Repository) snapshotLocked() []model.Task {
	out := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// write runs fn under the cache lock and, when fn reports a change, delivers the new
// snapshot to every listener before returning.
func (r *Repository) write(fn func(tasks map[string]model.Task) bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	changed := fn(r.tasks)
	var snap []model.Task
	if changed {
		snap = r.snapshotLocked()
	}
	r.mu.Unlock()

	if !changed {
		return
	}
	r.lmu.Lock()
	ls := make([]Listener, 0, len(r.lorder))
	for _, id := range r.lorder {
		ls = append(ls, r.listeners[id])
	}
	r.lmu.Unlock()
	for _, l := range ls {
		l(snap)
	}
}

// Load fills the cache from the adapter (every task, created order).
func (r *Repository) Load(ctx context.Context) ([]model.Task, error) {
	return r.Query(ctx, store.Filter{}, store.Sort{})
}

// Query reads through the adapter, refreshes the matching cache entries and returns
// the results ordered by s (ties by id ascending).
func (r *Repository) Query(ctx context.Context, f store.Filter, s store.Sort) ([]model.Task, error) {
	got, err := r.adapter.Query(ctx, store.Query{Filter: f, Sort: s})
	if err != nil {
		return nil, &taskerr.AdapterError{Op: "query", Err: err}
	}
	r.write(func(tasks map[string]model.Task) bool {
		for _, t := range got {
			tasks[t.ID] = t
		}
		return len(got) > 0
	})
	out := append([]model.Task(nil), got...)
	store.SortTasks(out, s)
	return out, nil
}

// CreateTask persists a new task and caches the adapter's copy. Nothing is cached
// until the adapter confirms.
func (r *Repository) CreateTask(ctx context.Context, data model.Task, actingUser string) (model.Task, error) {
	actingUser = strings.TrimSpace(actingUser)
	if actingUser == "" {
		return model.Task{}, taskerr.InvalidArgument("acting user is required")
	}
	t, err := validateNewTask(data)
	if err != nil {
		return model.Task{}, err
	}
	t.ID = ""
	t.History = []model.TaskHistoryEntry{}
	t.Comments = []model.TaskComment{}
	t.Attachments = []model.TaskAttachment{}
	t.CreatedBy = actingUser
	t.CreatedAt = time.Time{}
	t.UpdatedAt = time.Time{}

	created, err := r.adapter.Create(ctx, t)
	if err != nil {
		return model.Task{}, &taskerr.AdapterError{Op: "create", Err: err}
	}
	r.write(func(tasks map[string]model.Task) bool {
		tasks[created.ID] = created
		return true
	})
	r.bus.Publish(events.MutationApplied{TaskID: created.ID, Optimistic: false})
	r.bus.Publish(events.TaskCreated{Task: created, ActingUser: actingUser})
	return created, nil
}

// DeleteTask removes a task remotely, then from the cache. On remote failure the
// cache entry stays and the error is a SyncFailedError.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if _, ok := r.Get(id); !ok {
		return taskerr.NotFoundError{Kind: "task", ID: id}
	}
	if err := r.adapter.Remove(ctx, id); err != nil {
		r.log.Errorf("delete %s: %v", id, err)
		return &taskerr.SyncFailedError{Op: "delete", TaskID: id, Err: &taskerr.AdapterError{Op: "remove", Err: err}}
	}
	r.write(func(tasks map[string]model.Task) bool {
		if _, ok := tasks[id]; !ok {
			return false
		}
		delete(tasks, id)
		return true
	})
	r.bus.Publish(events.TaskDeleted{TaskID: id})
	return nil
}

// Mutate applies patch optimistically and persists it. See the package doc.
func (r *Repository) Mutate(ctx context.Context, id string, patch model.Patch, actingUser string) (model.Task, error) {
	if err := validatePatch(patch); err != nil {
		return model.Task{}, err
	}
	actingUser = strings.TrimSpace(actingUser)
	if actingUser == "" {
		return model.Task{}, taskerr.InvalidArgument("acting user is required")
	}
	patch = normalizePatch(patch)
	fields := patchFields(patch)
	return r.commit(ctx, change{
		op:         "mutate",
		taskID:     strings.TrimSpace(id),
		actingUser: actingUser,
		patch:      patch,
		apply:      func(t model.Task) model.Task { return applyPatch(t, patch) },
		fields:     func(model.Task) store.Fields { return fields },
	})
}

// AddComment appends a comment. Comments are append-only.
func (r *Repository) AddComment(ctx context.Context, id, content string, mentions []string, actingUser string) (model.Task, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Task{}, taskerr.InvalidArgument("comment content is required")
	}
	actingUser = strings.TrimSpace(actingUser)
	if actingUser == "" {
		return model.Task{}, taskerr.InvalidArgument("acting user is required")
	}
	now, err := r.serverNow(ctx)
	if err != nil {
		return model.Task{}, err
	}
	c := model.TaskComment{
		ID:        r.newID(),
		Content:   content,
		CreatedBy: actingUser,
		CreatedAt: now,
		Mentions:  normalizeTags(mentions),
	}
	if len(c.Mentions) == 0 {
		c.Mentions = nil
	}
	return r.commit(ctx, change{
		op:         "comment",
		taskID:     strings.TrimSpace(id),
		actingUser: actingUser,
		comment:    &c,
		apply: func(t model.Task) model.Task {
			cs := make([]model.TaskComment, 0, len(t.Comments)+1)
			t.Comments = append(append(cs, t.Comments...), c)
			return t
		},
		fields: func(t model.Task) store.Fields { return store.Fields{"comments": t.Comments} },
	})
}

// AddAttachment appends attachment metadata. Upload storage is not handled here.
func (r *Repository) AddAttachment(ctx context.Context, id string, a model.TaskAttachment, actingUser string) (model.Task, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.URL = strings.TrimSpace(a.URL)
	if a.Name == "" || a.URL == "" {
		return model.Task{}, taskerr.InvalidArgument("attachment name and url are required")
	}
	if a.Size < 0 {
		return model.Task{}, taskerr.InvalidArgument("attachment size must be non-negative")
	}
	actingUser = strings.TrimSpace(actingUser)
	if actingUser == "" {
		return model.Task{}, taskerr.InvalidArgument("acting user is required")
	}
	now, err := r.serverNow(ctx)
	if err != nil {
		return model.Task{}, err
	}
	a.ID = r.newID()
	a.UploadedBy = actingUser
	a.UploadedAt = now
	return r.commit(ctx, change{
		op:         "attach",
		taskID:     strings.TrimSpace(id),
		actingUser: actingUser,
		apply: func(t model.Task) model.Task {
			as := make([]model.TaskAttachment, 0, len(t.Attachments)+1)
			t.Attachments = append(append(as, t.Attachments...), a)
			return t
		},
		fields: func(t model.Task) store.Fields { return store.Fields{"attachments": t.Attachments} },
	})
}

// serverNow reads the store clock, which stamps everything the store persists.
func (r *Repository) serverNow(ctx context.Context) (time.Time, error) {
	now, err := r.adapter.Now(ctx)
	if err != nil {
		return time.Time{}, &taskerr.AdapterError{Op: "now", Err: err}
	}
	return now.UTC(), nil
}

// Close drops every listener and the cache. The repository must not be used afterwards.
func (r *Repository) Close() {
	r.lmu.Lock()
	r.listeners = map[int]Listener{}
	r.lorder = nil
	r.lmu.Unlock()

	r.writeMu.Lock()
	r.mu.Lock()
	r.tasks = map[string]model.Task{}
	r.mu.Unlock()
	r.writeMu.Unlock()
}
