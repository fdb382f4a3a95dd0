package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tasksync/internal/model"
)

var ErrEventContract = errors.New("event contract violation")

func formatErrEventContract(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEventContract, fmt.Sprintf(format, args...))
}

// normalizeEvent validates the caller-supplied part of ev and trims it.
func normalizeEvent(ev model.Event) (model.Event, error) {
	ev.TaskID = strings.TrimSpace(ev.TaskID)
	ev.Type = strings.TrimSpace(ev.Type)
	ev.ActorID = strings.TrimSpace(ev.ActorID)
	switch {
	case ev.TaskID == "":
		return ev, formatErrEventContract("missing task id")
	case ev.Type == "":
		return ev, formatErrEventContract("missing type")
	case !strings.HasPrefix(ev.Type, "task."):
		return ev, formatErrEventContract("invalid type %q", ev.Type)
	case ev.ActorID == "":
		return ev, formatErrEventContract("missing actor id")
	}
	if len(ev.Payload) > 0 && !json.Valid(ev.Payload) {
		return ev, formatErrEventContract("payload is not JSON")
	}
	ev.ID = uuid.NewString()
	return ev, nil
}

// tail keeps the newest limit events of an oldest-first slice.
func tail(evs []model.Event, limit int) []model.Event {
	if limit > 0 && len(evs) > limit {
		return evs[len(evs)-limit:]
	}
	return evs
}

func (m *Memory) AppendEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	ev, err := normalizeEvent(ev)
	if err != nil {
		return model.Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.TS.IsZero() {
		ev.TS = m.clock.Now()
	}
	m.eventSeq[ev.TaskID]++
	ev.Seq = m.eventSeq[ev.TaskID]
	ev.Payload = append(json.RawMessage(nil), ev.Payload...)
	m.events = append(m.events, ev)
	return ev, nil
}

func (m *Memory) ListEvents(ctx context.Context, q EventQuery) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taskID := strings.TrimSpace(q.TaskID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Event{}
	for _, ev := range m.events {
		if taskID != "" && ev.TaskID != taskID {
			continue
		}
		ev.Payload = append(json.RawMessage(nil), ev.Payload...)
		out = append(out, ev)
	}
	return tail(out, q.Limit), nil
}

func (s *SQLite) AppendEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	ev, err := normalizeEvent(ev)
	if err != nil {
		return model.Event{}, err
	}
	if ev.TS.IsZero() {
		ev.TS = s.clock.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE task_id = ?`, ev.TaskID).Scan(&ev.Seq); err != nil {
		return model.Event{}, err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return model.Event{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(id, task_id, seq, ts_unixms, json) VALUES(?, ?, ?, ?, ?)`,
		ev.ID, ev.TaskID, ev.Seq, ev.TS.UnixMilli(), string(raw)); err != nil {
		return model.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (s *SQLite) ListEvents(ctx context.Context, q EventQuery) ([]model.Event, error) {
	stmt := `SELECT json FROM events`
	var args []any
	if taskID := strings.TrimSpace(q.TaskID); taskID != "" {
		stmt += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	// rowid is insertion order, which ts alone cannot break ties for.
	stmt += ` ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tail(out, q.Limit), nil
}
