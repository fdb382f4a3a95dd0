package statusutil

import (
	"fmt"
	"strings"

	"tasksync/internal/model"
)

// Statuses returns the board column order.
func Statuses() []model.Status {
	return []model.Status{
		model.StatusNew,
		model.StatusInProgress,
		model.StatusReview,
		model.StatusDone,
		model.StatusCancelled,
	}
}

func Priorities() []model.Priority {
	return []model.Priority{
		model.PriorityCritical,
		model.PriorityHigh,
		model.PriorityMedium,
		model.PriorityLow,
	}
}

func ValidStatus(s model.Status) bool {
	for _, v := range Statuses() {
		if v == s {
			return true
		}
	}
	return false
}

func ValidPriority(p model.Priority) bool {
	for _, v := range Priorities() {
		if v == p {
			return true
		}
	}
	return false
}

// ParseStatus accepts the canonical ids plus a few user-friendly spellings
// ("in-progress", "in_progress", "DONE", "canceled").
func ParseStatus(s string) (model.Status, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	switch key {
	case "new", "todo":
		return model.StatusNew, nil
	case "inprogress", "doing":
		return model.StatusInProgress, nil
	case "review":
		return model.StatusReview, nil
	case "done":
		return model.StatusDone, nil
	case "cancelled", "canceled":
		return model.StatusCancelled, nil
	case "":
		return "", fmt.Errorf("invalid status: empty")
	default:
		return "", fmt.Errorf("invalid status: %q", s)
	}
}

func ParsePriority(s string) (model.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return model.PriorityCritical, nil
	case "high":
		return model.PriorityHigh, nil
	case "medium":
		return model.PriorityMedium, nil
	case "low":
		return model.PriorityLow, nil
	case "":
		return "", fmt.Errorf("invalid priority: empty")
	default:
		return "", fmt.Errorf("invalid priority: %q", s)
	}
}

func Label(s model.Status) string {
	switch s {
	case model.StatusNew:
		return "New"
	case model.StatusInProgress:
		return "In Progress"
	case model.StatusReview:
		return "Review"
	case model.StatusDone:
		return "Done"
	case model.StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

func IsEndState(s model.Status) bool {
	return s == model.StatusDone || s == model.StatusCancelled
}

// PriorityRank orders priorities from most to least urgent (critical = 0).
// Unknown values sort last.
func PriorityRank(p model.Priority) int {
	for i, v := range Priorities() {
		if v == p {
			return i
		}
	}
	return len(Priorities())
}
