package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tasksync/internal/model"
	"tasksync/internal/taskerr"
)

// Fields a patch may never touch; the store owns them.
var immutableFields = map[string]bool{
	"id":        true,
	"createdAt": true,
	"createdBy": true,
	"updatedAt": true,
}

// applyFields merges fields over the JSON document of t and decodes the result.
func applyFields(t model.Task, fields Fields) (model.Task, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return model.Task{}, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.Task{}, err
	}
	for k, v := range fields {
		if immutableFields[k] {
			return model.Task{}, taskerr.InvalidArgument("field %q is store-managed", k)
		}
		if v == nil {
			delete(doc, k)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return model.Task{}, fmt.Errorf("encode field %s: %w", k, err)
		}
		doc[k] = b
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return model.Task{}, err
	}
	var out model.Task
	if err := json.Unmarshal(merged, &out); err != nil {
		return model.Task{}, fmt.Errorf("decode patched task %s: %w", t.ID, err)
	}
	return normalizeDoc(out), nil
}

// normalizeDoc keeps child collections non-nil so documents round-trip as [] rather than null.
func normalizeDoc(t model.Task) model.Task {
	if t.Attachments == nil {
		t.Attachments = []model.TaskAttachment{}
	}
	if t.Comments == nil {
		t.Comments = []model.TaskComment{}
	}
	if t.History == nil {
		t.History = []model.TaskHistoryEntry{}
	}
	return t
}

func encodeTask(t model.Task) ([]byte, error) {
	return json.Marshal(normalizeDoc(t))
}

func decodeTask(b []byte) (model.Task, error) {
	var t model.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return model.Task{}, err
	}
	return normalizeDoc(t), nil
}

// serverClock is a non-decreasing UTC clock. Timestamps handed out by one store never
// go backwards even if the wall clock does.
type serverClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newServerClock(now func() time.Time) *serverClock {
	if now == nil {
		now = time.Now
	}
	return &serverClock{now: now}
}

func (c *serverClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Millisecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
