package model

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "inProgress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Assignee is a user id; empty means unassigned.
	Assignee string   `json:"assignee,omitempty"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`
	Project  string   `json:"project,omitempty"`

	Deadline      *time.Time `json:"deadline,omitempty"`
	EstimatedTime float64    `json:"estimatedTime"` // hours
	Progress      int        `json:"progress"`      // 0..100
	Tags          []string   `json:"tags,omitempty"`

	Attachments []TaskAttachment   `json:"attachments"`
	Comments    []TaskComment      `json:"comments"`
	History     []TaskHistoryEntry `json:"history"`

	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskHistoryEntry records one field-level change. Entries are never mutated or removed.
type TaskHistoryEntry struct {
	ID        string    `json:"id"`
	Field     string    `json:"field"`
	OldValue  any       `json:"oldValue"`
	NewValue  any       `json:"newValue"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
}

type TaskComment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	Mentions  []string  `json:"mentions,omitempty"`
}

type TaskAttachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size,omitempty"`
	UploadedBy  string    `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type NotificationType string

const (
	NotificationTask    NotificationType = "task"
	NotificationSystem  NotificationType = "system"
	NotificationMention NotificationType = "mention"
)

type Notification struct {
	ID        string           `json:"id"`
	Recipient string           `json:"recipient"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
	TaskID    string           `json:"taskId,omitempty"`
}

// Patch is a partial set of mutable Task fields. Nil fields are left untouched.
// History, comments and attachments are never patched directly.
type Patch struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Assignee      *string    `json:"assignee,omitempty"`
	Priority      *Priority  `json:"priority,omitempty"`
	Status        *Status    `json:"status,omitempty"`
	Project       *string    `json:"project,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"` // zero time clears the deadline
	EstimatedTime *float64   `json:"estimatedTime,omitempty"`
	Progress      *int       `json:"progress,omitempty"`
	Tags          *[]string  `json:"tags,omitempty"`
}

// Event is one entry of the local sync journal: what happened to a task, by whom,
// in per-task order.
type Event struct {
	ID      string          `json:"id"`
	TaskID  string          `json:"taskId"`
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	ActorID string          `json:"actorId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
