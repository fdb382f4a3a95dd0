package store

import (
	"sort"
	"strings"
	"time"

	"tasksync/internal/model"
	"tasksync/internal/statusutil"
)

type Query struct {
	Filter Filter
	Sort   Sort
	// Limit caps the number of results; zero means no limit.
	Limit int
}

// Filter narrows a task query. Zero-valued fields match everything.
type Filter struct {
	IDs      []string
	Statuses []model.Status
	// Assignee filters by assignee when non-nil; a pointer to "" selects unassigned tasks.
	Assignee *string
	Project  *string
	Tag      string

	// DeadlineFrom/DeadlineTo bound the deadline (inclusive/exclusive). Tasks without a
	// deadline never match a bounded filter.
	DeadlineFrom *time.Time
	DeadlineTo   *time.Time
}

type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortDeadline  SortField = "deadline"
	SortPriority  SortField = "priority"
	SortProgress  SortField = "progress"
	SortStatus    SortField = "status"
	SortTitle     SortField = "title"
)

type Sort struct {
	Field SortField
	Desc  bool
}

func ParseSortField(s string) (SortField, bool) {
	switch SortField(strings.TrimSpace(s)) {
	case "", SortCreatedAt:
		return SortCreatedAt, true
	case SortUpdatedAt:
		return SortUpdatedAt, true
	case SortDeadline:
		return SortDeadline, true
	case SortPriority:
		return SortPriority, true
	case SortProgress:
		return SortProgress, true
	case SortStatus:
		return SortStatus, true
	case SortTitle:
		return SortTitle, true
	default:
		return "", false
	}
}

// Match reports whether t satisfies f.
func Match(t model.Task, f Filter) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, t.ID) {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if s == t.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Assignee != nil && strings.TrimSpace(*f.Assignee) != t.Assignee {
		return false
	}
	if f.Project != nil && strings.TrimSpace(*f.Project) != t.Project {
		return false
	}
	if tag := strings.TrimSpace(f.Tag); tag != "" && !containsString(t.Tags, tag) {
		return false
	}
	if f.DeadlineFrom != nil || f.DeadlineTo != nil {
		if t.Deadline == nil {
			return false
		}
		if f.DeadlineFrom != nil && t.Deadline.Before(*f.DeadlineFrom) {
			return false
		}
		if f.DeadlineTo != nil && !t.Deadline.Before(*f.DeadlineTo) {
			return false
		}
	}
	return true
}

// SortTasks orders tasks in place by s. Ties (and tasks whose sort keys are equal)
// are broken by id ascending regardless of direction. Tasks without a deadline sort
// last when sorting by deadline.
func SortTasks(tasks []model.Task, s Sort) {
	field := s.Field
	if field == "" {
		field = SortCreatedAt
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		c := compareField(a, b, field)
		if c != 0 {
			if field == SortDeadline && (a.Deadline == nil) != (b.Deadline == nil) {
				// Missing deadlines stay at the end in both directions.
				return a.Deadline != nil
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return a.ID < b.ID
	})
}

func compareField(a, b model.Task, field SortField) int {
	switch field {
	case SortUpdatedAt:
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	case SortDeadline:
		switch {
		case a.Deadline == nil && b.Deadline == nil:
			return 0
		case a.Deadline == nil:
			return 1
		case b.Deadline == nil:
			return -1
		}
		return compareTime(*a.Deadline, *b.Deadline)
	case SortPriority:
		return compareInt(statusutil.PriorityRank(a.Priority), statusutil.PriorityRank(b.Priority))
	case SortProgress:
		return compareInt(a.Progress, b.Progress)
	case SortStatus:
		return compareInt(statusIndex(a.Status), statusIndex(b.Status))
	case SortTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	default:
		return compareTime(a.CreatedAt, b.CreatedAt)
	}
}

func statusIndex(s model.Status) int {
	for i, v := range statusutil.Statuses() {
		if v == s {
			return i
		}
	}
	return len(statusutil.Statuses())
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Apply filters, sorts and limits tasks. The input slice is not modified.
func Apply(tasks []model.Task, q Query) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if Match(t, q.Filter) {
			out = append(out, t)
		}
	}
	SortTasks(out, q.Sort)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
