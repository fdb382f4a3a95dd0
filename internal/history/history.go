// Package history derives field-level audit entries from two task snapshots.
package history

import (
	"sort"
	"time"

	"tasksync/internal/model"
	"tasksync/internal/taskerr"

	"github.com/google/uuid"
)

// Fields is the mutable field set, in the order entries are emitted.
var Fields = []string{
	"title",
	"description",
	"assignee",
	"priority",
	"status",
	"project",
	"deadline",
	"estimatedTime",
	"progress",
	"tags",
}

type Recorder struct {
	// NewID generates entry ids; defaults to random UUIDs.
	NewID func() string
}

func NewRecorder() *Recorder {
	return &Recorder{NewID: uuid.NewString}
}

// Record returns one entry per field whose value differs between oldTask and newTask.
// changedAt is at, clamped so it never precedes the last entry already in newTask.History.
func (r *Recorder) Record(oldTask, newTask model.Task, actingUser string, at time.Time) ([]model.TaskHistoryEntry, error) {
	if oldTask.ID != newTask.ID {
		return nil, taskerr.InvalidArgument("history: task ids differ (%q vs %q)", oldTask.ID, newTask.ID)
	}
	if n := len(newTask.History); n > 0 && at.Before(newTask.History[n-1].ChangedAt) {
		at = newTask.History[n-1].ChangedAt
	}

	var out []model.TaskHistoryEntry
	for _, f := range Fields {
		ov, nv := fieldValue(oldTask, f), fieldValue(newTask, f)
		if equalValues(f, ov, nv) {
			continue
		}
		out = append(out, model.TaskHistoryEntry{
			ID:        r.newID(),
			Field:     f,
			OldValue:  ov,
			NewValue:  nv,
			ChangedBy: actingUser,
			ChangedAt: at,
		})
	}
	return out, nil
}

// Append returns t with entries appended to a fresh history slice. Entries older than
// the current tail are moved up to it so the history stays ordered by changedAt.
func Append(t model.Task, entries []model.TaskHistoryEntry) model.Task {
	if len(entries) == 0 {
		return t
	}
	h := make([]model.TaskHistoryEntry, 0, len(t.History)+len(entries))
	h = append(h, t.History...)
	for _, e := range entries {
		if n := len(h); n > 0 && e.ChangedAt.Before(h[n-1].ChangedAt) {
			e.ChangedAt = h[n-1].ChangedAt
		}
		h = append(h, e)
	}
	t.History = h
	return t
}

func (r *Recorder) newID() string {
	if r == nil || r.NewID == nil {
		return uuid.NewString()
	}
	return r.NewID()
}

func fieldValue(t model.Task, field string) any {
	switch field {
	case "title":
		return t.Title
	case "description":
		return t.Description
	case "assignee":
		return t.Assignee
	case "priority":
		return string(t.Priority)
	case "status":
		return string(t.Status)
	case "project":
		return t.Project
	case "deadline":
		if t.Deadline == nil {
			return nil
		}
		return t.Deadline.UTC()
	case "estimatedTime":
		return t.EstimatedTime
	case "progress":
		return t.Progress
	case "tags":
		return sortedTags(t.Tags)
	default:
		return nil
	}
}

func equalValues(field string, a, b any) bool {
	switch field {
	case "deadline":
		at, aok := a.(time.Time)
		bt, bok := b.(time.Time)
		if !aok || !bok {
			return aok == bok
		}
		return at.Equal(bt)
	case "tags":
		as, bs := a.([]string), b.([]string)
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// sortedTags treats tags as a set: order and duplicates do not count as changes.
func sortedTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
