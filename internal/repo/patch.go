package repo

import (
	"sort"
	"strings"
	"time"

	"tasksync/internal/model"
	"tasksync/internal/statusutil"
	"tasksync/internal/store"
	"tasksync/internal/taskerr"
)

func isEmptyPatch(p model.Patch) bool {
	return p.Title == nil &&
		p.Description == nil &&
		p.Assignee == nil &&
		p.Priority == nil &&
		p.Status == nil &&
		p.Project == nil &&
		p.Deadline == nil &&
		p.EstimatedTime == nil &&
		p.Progress == nil &&
		p.Tags == nil
}

func validatePatch(p model.Patch) error {
	if isEmptyPatch(p) {
		return taskerr.InvalidArgument("empty patch")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return taskerr.InvalidArgument("title must not be empty")
	}
	if p.Status != nil && !statusutil.ValidStatus(*p.Status) {
		return taskerr.InvalidArgument("unknown status %q", *p.Status)
	}
	if p.Priority != nil && !statusutil.ValidPriority(*p.Priority) {
		return taskerr.InvalidArgument("unknown priority %q", *p.Priority)
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return taskerr.InvalidArgument("progress %d out of range 0..100", *p.Progress)
	}
	if p.EstimatedTime != nil && *p.EstimatedTime < 0 {
		return taskerr.InvalidArgument("estimatedTime must be non-negative")
	}
	return nil
}

// normalizePatch trims strings and turns tags into a sorted set.
func normalizePatch(p model.Patch) model.Patch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	p.Title = trim(p.Title)
	p.Assignee = trim(p.Assignee)
	p.Project = trim(p.Project)
	if p.Tags != nil {
		tags := normalizeTags(*p.Tags)
		p.Tags = &tags
	}
	if p.Deadline != nil && !p.Deadline.IsZero() {
		d := p.Deadline.UTC()
		p.Deadline = &d
	}
	return p
}

func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// applyPatch merges p over t. Slices are copied so t is never aliased.
func applyPatch(t model.Task, p model.Patch) model.Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Project != nil {
		t.Project = *p.Project
	}
	if p.Deadline != nil {
		if p.Deadline.IsZero() {
			t.Deadline = nil
		} else {
			d := *p.Deadline
			t.Deadline = &d
		}
	}
	if p.EstimatedTime != nil {
		t.EstimatedTime = *p.EstimatedTime
	}
	if p.Progress != nil {
		t.Progress = *p.Progress
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
		if len(t.Tags) == 0 {
			t.Tags = nil
		}
	}
	return t
}

// patchFields renders p as the document fields sent to the adapter.
func patchFields(p model.Patch) store.Fields {
	f := store.Fields{}
	if p.Title != nil {
		f["title"] = *p.Title
	}
	if p.Description != nil {
		f["description"] = *p.Description
	}
	if p.Assignee != nil {
		f["assignee"] = *p.Assignee
	}
	if p.Priority != nil {
		f["priority"] = *p.Priority
	}
	if p.Status != nil {
		f["status"] = *p.Status
	}
	if p.Project != nil {
		f["project"] = *p.Project
	}
	if p.Deadline != nil {
		if p.Deadline.IsZero() {
			f["deadline"] = nil
		} else {
			f["deadline"] = p.Deadline.UTC().Format(time.RFC3339Nano)
		}
	}
	if p.EstimatedTime != nil {
		f["estimatedTime"] = *p.EstimatedTime
	}
	if p.Progress != nil {
		f["progress"] = *p.Progress
	}
	if p.Tags != nil {
		if len(*p.Tags) == 0 {
			f["tags"] = nil
		} else {
			f["tags"] = *p.Tags
		}
	}
	return f
}

// validateNewTask checks creation input and fills defaults (status new, priority medium).
func validateNewTask(t model.Task) (model.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return model.Task{}, taskerr.InvalidArgument("title is required")
	}
	if t.Status == "" {
		t.Status = model.StatusNew
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if !statusutil.ValidStatus(t.Status) {
		return model.Task{}, taskerr.InvalidArgument("unknown status %q", t.Status)
	}
	if !statusutil.ValidPriority(t.Priority) {
		return model.Task{}, taskerr.InvalidArgument("unknown priority %q", t.Priority)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return model.Task{}, taskerr.InvalidArgument("progress %d out of range 0..100", t.Progress)
	}
	if t.EstimatedTime < 0 {
		return model.Task{}, taskerr.InvalidArgument("estimatedTime must be non-negative")
	}
	t.Assignee = strings.TrimSpace(t.Assignee)
	t.Project = strings.TrimSpace(t.Project)
	t.Tags = normalizeTags(t.Tags)
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	if t.Deadline != nil {
		d := t.Deadline.UTC()
		t.Deadline = &d
	}
	return t, nil
}
