package repo

import (
	"context"
	"sync"

	"tasksync/internal/events"
	"tasksync/internal/history"
	"tasksync/internal/model"
	"tasksync/internal/store"
	"tasksync/internal/taskerr"
)

// change describes one optimistic edit of a cached task.
type change struct {
	op         string
	taskID     string
	actingUser string
	patch      model.Patch
	comment    *model.TaskComment

	apply  func(model.Task) model.Task
	fields func(optimistic model.Task) store.Fields
}

// commit is snapshot, apply, await, then commit or revert.
//
// Ordering: the optimistic write (and its listener delivery) happens before the adapter
// call; history and the committed event happen only after the adapter confirms.
// Concurrent commits on one task are not serialized: each reverts to its own snapshot.
// Only their history writes take turns, so no committed entry is lost.
func (r *Repository) commit(ctx context.Context, c change) (model.Task, error) {
	var before, optimistic model.Task
	found := false
	r.write(func(tasks map[string]model.Task) bool {
		cur, ok := tasks[c.taskID]
		if !ok {
			return false
		}
		found = true
		before = cur
		optimistic = c.apply(cur)
		tasks[c.taskID] = optimistic
		return true
	})
	if !found {
		return model.Task{}, taskerr.NotFoundError{Kind: "task", ID: c.taskID}
	}
	r.bus.Publish(events.MutationApplied{TaskID: c.taskID, Optimistic: true})

	confirmed, err := r.adapter.Patch(ctx, c.taskID, c.fields(optimistic))
	if err != nil {
		r.rollback(c, before, err)
		return model.Task{}, &taskerr.SyncFailedError{Op: c.op, TaskID: c.taskID, Err: &taskerr.AdapterError{Op: "patch", Err: err}}
	}

	// History of one task is written by one commit at a time, and the cache takes the
	// result before the next commit reads it.
	unlock := r.historyLocks.lock(c.taskID)
	final := r.recordHistory(ctx, c, before, optimistic, confirmed)
	r.write(func(tasks map[string]model.Task) bool {
		// A pessimistic delete that landed meanwhile wins.
		if _, ok := tasks[c.taskID]; !ok {
			return false
		}
		tasks[c.taskID] = final
		return true
	})
	unlock()
	r.bus.Publish(events.MutationApplied{TaskID: c.taskID, Optimistic: false})
	r.bus.Publish(events.MutationCommitted{
		TaskID:     c.taskID,
		Op:         c.op,
		Patch:      c.patch,
		ActingUser: c.actingUser,
		Before:     before,
		After:      final,
		Comment:    c.comment,
	})
	return final, nil
}

// recordHistory diffs the snapshots this change produced and appends the entries to the
// latest stored history. The entries are written back with a second patch; if that write
// fails the confirmed field change stands and the entries live only in the cache.
// Callers hold the task's history lock.
func (r *Repository) recordHistory(ctx context.Context, c change, before, optimistic, confirmed model.Task) model.Task {
	entries, err := r.recorder.Record(before, optimistic, c.actingUser, confirmed.UpdatedAt)
	if err != nil {
		r.log.Errorf("history %s: %v", c.taskID, err)
		return r.keepCachedHistory(confirmed)
	}
	if len(entries) == 0 {
		return r.keepCachedHistory(confirmed)
	}

	base := confirmed
	if latest, err := r.adapter.Fetch(ctx, c.taskID); err != nil {
		r.log.Errorf("history fetch %s: %v", c.taskID, err)
	} else {
		base.History = mergeHistory(base.History, latest.History)
	}
	base = r.keepCachedHistory(base)

	withHistory := history.Append(base, entries)
	saved, err := r.adapter.Patch(ctx, c.taskID, store.Fields{"history": withHistory.History})
	if err != nil {
		r.log.Errorf("history write %s (%d entries): %v", c.taskID, len(entries), err)
		return withHistory
	}
	return saved
}

// keepCachedHistory adds to t the cached entries it lacks, so entries that only made it
// to the cache are not dropped by a later commit.
func (r *Repository) keepCachedHistory(t model.Task) model.Task {
	cur, ok := r.Get(t.ID)
	if !ok {
		return t
	}
	if merged := mergeHistory(t.History, cur.History); len(merged) > len(t.History) {
		t.History = merged
	}
	return t
}

// mergeHistory returns a followed by the entries of b whose id a does not have.
func mergeHistory(a, b []model.TaskHistoryEntry) []model.TaskHistoryEntry {
	seen := make(map[string]bool, len(a))
	for _, h := range a {
		seen[h.ID] = true
	}
	out := make([]model.TaskHistoryEntry, 0, len(a)+len(b))
	out = append(out, a...)
	for _, h := range b {
		if !seen[h.ID] {
			out = append(out, h)
		}
	}
	return out
}

// rollback puts the snapshot back. History is append-only, so entries committed by
// other changes since the snapshot stay.
func (r *Repository) rollback(c change, before model.Task, cause error) {
	id := c.taskID
	r.write(func(tasks map[string]model.Task) bool {
		cur, ok := tasks[id]
		if !ok {
			return false
		}
		restored := before
		if merged := mergeHistory(before.History, cur.History); len(merged) > len(before.History) {
			restored.History = merged
		}
		tasks[id] = restored
		return true
	})
	r.log.Infof("rolled back %s: %v", id, cause)
	r.bus.Publish(events.MutationRolledBack{TaskID: id, Op: c.op, ActingUser: c.actingUser, Reason: cause})
}

// taskLocks is a set of per-task mutexes, dropped once nobody holds or waits on them.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*taskLock
}

type taskLock struct {
	sync.Mutex
	refs int
}

func (l *taskLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*taskLock{}
	}
	tl := l.locks[id]
	if tl == nil {
		tl = &taskLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()
	return func() {
		tl.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
