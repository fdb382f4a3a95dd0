package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tasksync/internal/format"
	"tasksync/internal/model"
	"tasksync/internal/statusutil"
	"tasksync/internal/tui"
)

// envelope is the JSON shape of every command's output. text, when set, is the
// --format text rendering of Data.
type envelope struct {
	Data  any            `json:"data"`
	Meta  map[string]any `json:"meta,omitempty"`
	Hints []string       `json:"_hints,omitempty"`

	text func() string
}

func (e envelope) Text() string {
	if e.text != nil {
		return e.text()
	}
	b, err := json.MarshalIndent(e.Data, "", "  ")
	if err != nil {
		return fmt.Sprint(e.Data)
	}
	return string(b)
}

var _ format.Texter = envelope{}

func taskTable(tasks []model.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID,
			statusutil.Label(t.Status),
			string(t.Priority),
			orDash(t.Assignee),
			fmt.Sprintf("%d%%", t.Progress),
			deadlineText(t.Deadline),
			t.Title,
		})
	}
	return format.Table{
		Headers: []string{"ID", "STATUS", "PRIORITY", "ASSIGNEE", "PROGRESS", "DEADLINE", "TITLE"},
		Rows:    rows,
	}.Text()
}

func taskDetail(t model.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", t.ID, t.Title)
	fmt.Fprintf(&b, "status: %s   priority: %s   progress: %d%%\n", statusutil.Label(t.Status), t.Priority, t.Progress)
	fmt.Fprintf(&b, "assignee: %s   project: %s   deadline: %s\n", orDash(t.Assignee), orDash(t.Project), deadlineText(t.Deadline))
	if t.EstimatedTime > 0 {
		fmt.Fprintf(&b, "estimate: %gh\n", t.EstimatedTime)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(&b, "tags: %s\n", strings.Join(t.Tags, ", "))
	}
	fmt.Fprintf(&b, "created by %s at %s, updated %s\n", t.CreatedBy, t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339))
	if d := tui.RenderMarkdown(t.Description, 80); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
		b.WriteString("\n")
	}
	if len(t.Comments) > 0 {
		b.WriteString("\ncomments:\n")
		for _, c := range t.Comments {
			fmt.Fprintf(&b, "  %s %s: %s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.CreatedBy, c.Content)
		}
	}
	if len(t.Attachments) > 0 {
		b.WriteString("\nattachments:\n")
		for _, a := range t.Attachments {
			fmt.Fprintf(&b, "  %s <%s> (%d bytes)\n", a.Name, a.URL, a.Size)
		}
	}
	return b.String()
}

func historyTable(entries []model.TaskHistoryEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, h := range entries {
		rows = append(rows, []string{
			h.ChangedAt.Format(time.RFC3339),
			h.ChangedBy,
			h.Field,
			valueText(h.OldValue),
			valueText(h.NewValue),
		})
	}
	return format.Table{Headers: []string{"CHANGED", "BY", "FIELD", "FROM", "TO"}, Rows: rows}.Text()
}

func notificationTable(ns []model.Notification) string {
	rows := make([][]string, 0, len(ns))
	for _, n := range ns {
		read := " "
		if !n.Read {
			read = "*"
		}
		rows = append(rows, []string{read, n.ID, string(n.Type), n.CreatedAt.Format("2006-01-02 15:04"), n.Message})
	}
	return format.Table{Headers: []string{"", "ID", "TYPE", "CREATED", "MESSAGE"}, Rows: rows}.Text()
}

func deadlineText(d *time.Time) string {
	if d == nil {
		return "-"
	}
	return d.Local().Format("2006-01-02 15:04")
}

func valueText(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return orDash(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			parts = append(parts, fmt.Sprint(p))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
