package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tasksync/internal/model"
	"tasksync/internal/taskerr"

	_ "modernc.org/sqlite"
)

// SQLite is a Backend that stores each task and notification as a JSON document,
// with the columns queries filter on copied out next to it.
type SQLite struct {
	path  string
	db    *sql.DB
	clock *serverClock
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	return OpenSQLiteWithClock(ctx, path, nil)
}

func OpenSQLiteWithClock(ctx context.Context, path string, now func() time.Time) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite: empty path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s := &SQLite{path: path, db: db, clock: newServerClock(now)}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			assignee TEXT NOT NULL DEFAULT '',
			project TEXT NOT NULL DEFAULT '',
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL,
			json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			recipient TEXT NOT NULL,
			read INTEGER NOT NULL DEFAULT 0,
			created_at_unixms INTEGER NOT NULL,
			json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient, read);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts_unixms INTEGER NOT NULL,
			json TEXT NOT NULL,
			UNIQUE(task_id, seq)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Now(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return s.clock.Now(), nil
}

func (s *SQLite) Fetch(ctx context.Context, id string) (model.Task, error) {
	return fetchTask(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func fetchTask(ctx context.Context, q queryer, id string) (model.Task, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT json FROM tasks WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, taskerr.NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return model.Task{}, err
	}
	return decodeTask([]byte(raw))
}

func (s *SQLite) Query(ctx context.Context, q Query) ([]model.Task, error) {
	// Status/assignee/project are pushed down to SQL; the rest of the filter, the sort
	// and the limit run over the decoded documents.
	var where []string
	var args []any
	if len(q.Filter.Statuses) > 0 {
		ph := make([]string, 0, len(q.Filter.Statuses))
		for _, st := range q.Filter.Statuses {
			ph = append(ph, "?")
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(ph, ",")+")")
	}
	if q.Filter.Assignee != nil {
		where = append(where, "assignee = ?")
		args = append(args, strings.TrimSpace(*q.Filter.Assignee))
	}
	if q.Filter.Project != nil {
		where = append(where, "project = ?")
		args = append(args, strings.TrimSpace(*q.Filter.Project))
	}
	stmt := `SELECT json FROM tasks`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []model.Task
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := decodeTask([]byte(raw))
		if err != nil {
			return nil, err
		}
		all = append(all, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Apply(all, q), nil
}

func (s *SQLite) Create(ctx context.Context, t model.Task) (model.Task, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return model.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	id, err := newUniqueID("task", func(id string) (bool, error) {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE id = ?`, id).Scan(&n); err != nil {
			return false, err
		}
		return n > 0, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	now := s.clock.Now()
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := upsertTask(ctx, tx, t); err != nil {
		return model.Task{}, err
	}
	out, err := fetchTask(ctx, tx, id)
	if err != nil {
		return model.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

func (s *SQLite) Patch(ctx context.Context, id string, fields Fields) (model.Task, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return model.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := fetchTask(ctx, tx, id)
	if err != nil {
		return model.Task{}, err
	}
	next, err := applyFields(cur, fields)
	if err != nil {
		return model.Task{}, err
	}
	next.UpdatedAt = s.clock.Now()
	if err := upsertTask(ctx, tx, next); err != nil {
		return model.Task{}, err
	}
	out, err := fetchTask(ctx, tx, id)
	if err != nil {
		return model.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

func upsertTask(ctx context.Context, tx *sql.Tx, t model.Task) error {
	raw, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO tasks(id, status, assignee, project, created_at_unixms, updated_at_unixms, json)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Status), t.Assignee, t.Project, t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(), string(raw))
	return err
}

func (s *SQLite) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return taskerr.NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

func (s *SQLite) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if strings.TrimSpace(n.ID) == "" {
		id, err := newUniqueID("ntf", func(id string) (bool, error) {
			var c int
			if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM notifications WHERE id = ?`, id).Scan(&c); err != nil {
				return false, err
			}
			return c > 0, nil
		})
		if err != nil {
			return model.Notification{}, err
		}
		n.ID = id
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now()
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return model.Notification{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO notifications(id, recipient, read, created_at_unixms, json) VALUES(?, ?, ?, ?, ?)`,
		n.ID, n.Recipient, boolToInt(n.Read), n.CreatedAt.UnixMilli(), string(raw))
	if err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

func (s *SQLite) MarkNotificationRead(ctx context.Context, id string) (model.Notification, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return model.Notification{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT json FROM notifications WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Notification{}, taskerr.NotFoundError{Kind: "notification", ID: id}
	}
	if err != nil {
		return model.Notification{}, err
	}
	var n model.Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return model.Notification{}, err
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	b, err := json.Marshal(n)
	if err != nil {
		return model.Notification{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notifications SET read = 1, json = ? WHERE id = ?`, string(b), id); err != nil {
		return model.Notification{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

func (s *SQLite) ListNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]model.Notification, error) {
	stmt := `SELECT json FROM notifications WHERE recipient = ?`
	if unreadOnly {
		stmt += ` AND read = 0`
	}
	rows, err := s.db.QueryContext(ctx, stmt, recipient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var n model.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNotifications(out)
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
