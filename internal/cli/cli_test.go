package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

// testWorkspace isolates config and database for one test and returns a runner that
// decodes the JSON envelope of a successful command.
func testWorkspace(t *testing.T) func(args ...string) map[string]any {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TASKSYNC_CONFIG_DIR", dir)
	t.Setenv("TASKSYNC_USER", "")
	t.Setenv("TASKSYNC_BACKEND", "")
	t.Setenv("TASKSYNC_FORMAT", "")
	dbPath := filepath.Join(dir, "tasks.sqlite")
	t.Setenv("TASKSYNC_DB", dbPath)

	return func(args ...string) map[string]any {
		t.Helper()
		full := append([]string{"--backend", "sqlite", "--db", dbPath}, args...)
		stdout, stderr, err := runCLI(t, full)
		if err != nil {
			t.Fatalf("command failed: tasksync %v\nerr: %v\nstderr:\n%s\nstdout:\n%s", args, err, stderr, stdout)
		}
		var env map[string]any
		if err := json.Unmarshal(stdout, &env); err != nil {
			t.Fatalf("unmarshal stdout as json envelope: %v\nstdout:\n%s\nargs: %v", err, stdout, args)
		}
		if _, ok := env["data"]; !ok {
			t.Fatalf("expected JSON envelope to contain data key; got: %v", env)
		}
		return env
	}
}

// runText runs a command in the current test workspace with --format text.
func runText(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := runCLI(t, append([]string{"--backend", "sqlite", "--format", "text"}, args...))
	if err != nil {
		t.Fatalf("command failed: tasksync %v\nerr: %v\nstderr:\n%s", args, err, stderr)
	}
	return string(stdout)
}

func dataMap(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	m, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data; got %#v", env["data"])
	}
	return m
}

func dataList(t *testing.T, env map[string]any) []any {
	t.Helper()
	xs, ok := env["data"].([]any)
	if !ok {
		t.Fatalf("expected list data; got %#v", env["data"])
	}
	return xs
}

func TestCLITaskLifecycle(t *testing.T) {
	run := testWorkspace(t)

	created := dataMap(t, run("--user", "lead", "tasks", "create", "--title", "Write release notes", "--assignee", "dev-1", "--priority", "high"))
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("expected task id; got %#v", created)
	}
	if created["status"] != "new" || created["priority"] != "high" || created["createdBy"] != "lead" {
		t.Fatalf("unexpected created task: %#v", created)
	}

	list := run("--user", "lead", "tasks", "list")
	if xs := dataList(t, list); len(xs) != 1 {
		t.Fatalf("expected 1 task; got %d", len(xs))
	}
	if meta, _ := list["meta"].(map[string]any); meta["total"] != float64(1) {
		t.Fatalf("expected meta.total=1; got %#v", list["meta"])
	}

	set := dataMap(t, run("--user", "lead", "tasks", "set", id, "--progress", "40", "--title", "Write the release notes"))
	if set["progress"] != float64(40) || set["title"] != "Write the release notes" {
		t.Fatalf("unexpected set result: %#v", set)
	}

	moved := run("--user", "lead", "tasks", "move", id, "review")
	if meta, _ := moved["meta"].(map[string]any); meta["outcome"] != "moved" {
		t.Fatalf("expected outcome moved; got %#v", moved["meta"])
	}
	if dataMap(t, moved)["status"] != "review" {
		t.Fatalf("expected status review; got %#v", moved["data"])
	}

	hist := dataList(t, run("--user", "lead", "tasks", "history", id))
	fields := map[string]bool{}
	for _, h := range hist {
		e := h.(map[string]any)
		fields[e["field"].(string)] = true
		if e["changedBy"] != "lead" {
			t.Fatalf("expected changedBy lead; got %#v", e)
		}
	}
	for _, f := range []string{"progress", "title", "status"} {
		if !fields[f] {
			t.Fatalf("expected history entry for %s; got %#v", f, hist)
		}
	}
	statusOnly := dataList(t, run("--user", "lead", "tasks", "history", id, "--field", "status"))
	if len(statusOnly) != 1 {
		t.Fatalf("expected 1 status entry; got %#v", statusOnly)
	}

	filtered := dataList(t, run("--user", "lead", "tasks", "list", "--status", "review"))
	if len(filtered) != 1 {
		t.Fatalf("expected review filter to match; got %#v", filtered)
	}
	if xs := dataList(t, run("--user", "lead", "tasks", "list", "--status", "new")); len(xs) != 0 {
		t.Fatalf("expected no new tasks; got %#v", xs)
	}

	run("--user", "lead", "tasks", "delete", id)
	if xs := dataList(t, run("--user", "lead", "tasks", "list")); len(xs) != 0 {
		t.Fatalf("expected no tasks after delete; got %#v", xs)
	}

	journal := dataList(t, run("--user", "lead", "events", "list", "--task", id))
	var types []string
	for _, e := range journal {
		types = append(types, e.(map[string]any)["type"].(string))
	}
	if got := strings.Join(types, ","); got != "task.create,task.mutate,task.mutate,task.delete" {
		t.Fatalf("unexpected journal: %s", got)
	}
}

func TestCLICommentMentionNotifies(t *testing.T) {
	run := testWorkspace(t)

	id := dataMap(t, run("--user", "lead", "tasks", "create", "--title", "Review copy"))["id"].(string)
	c := dataMap(t, run("--user", "lead", "comments", "add", id, "--body", "@dev-2 can you check this?"))
	if c["createdBy"] != "lead" {
		t.Fatalf("unexpected comment: %#v", c)
	}

	ns := dataList(t, run("--user", "dev-2", "notifications", "list", "--unread"))
	if len(ns) != 1 {
		t.Fatalf("expected one notification for dev-2; got %#v", ns)
	}
	n := ns[0].(map[string]any)
	if n["type"] != "mention" || n["taskId"] != id {
		t.Fatalf("unexpected notification: %#v", n)
	}

	read := dataMap(t, run("--user", "dev-2", "notifications", "read", n["id"].(string)))
	if read["read"] != true {
		t.Fatalf("expected read notification; got %#v", read)
	}
	if xs := dataList(t, run("--user", "dev-2", "notifications", "list", "--unread")); len(xs) != 0 {
		t.Fatalf("expected no unread notifications; got %#v", xs)
	}

	comments := dataList(t, run("--user", "lead", "comments", "list", id))
	if len(comments) != 1 {
		t.Fatalf("expected one comment; got %#v", comments)
	}
}

func TestCLIConfigCurrentUser(t *testing.T) {
	run := testWorkspace(t)

	run("config", "set", "--user", "alice")
	shown := dataMap(t, run("config", "show"))
	cfg, _ := shown["config"].(map[string]any)
	if cfg["currentUser"] != "alice" {
		t.Fatalf("expected currentUser alice; got %#v", shown)
	}

	created := dataMap(t, run("tasks", "create", "--title", "From config"))
	if created["createdBy"] != "alice" {
		t.Fatalf("expected config user to act; got %#v", created)
	}
}

func TestCLIRequiresUser(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKSYNC_CONFIG_DIR", dir)
	t.Setenv("TASKSYNC_USER", "")

	_, stderr, err := runCLI(t, []string{"--backend", "memory", "tasks", "list"})
	if err == nil {
		t.Fatalf("expected error without a user")
	}
	if !strings.Contains(string(stderr), "no current user") {
		t.Fatalf("expected hint in stderr; got %q", stderr)
	}
}

func TestCLIRejectsBadInput(t *testing.T) {
	run := testWorkspace(t)
	id := dataMap(t, run("--user", "lead", "tasks", "create", "--title", "Bounds"))["id"].(string)

	dbPath := filepath.Join(t.TempDir(), "unused.sqlite")
	cases := [][]string{
		{"--db", dbPath, "--user", "lead", "tasks", "move", id, "archived"},
		{"--db", dbPath, "--user", "lead", "tasks", "list", "--sort", "color"},
		{"--db", dbPath, "--user", "lead", "tasks", "create", "--title", "x", "--deadline", "tomorrow"},
		{"--db", dbPath, "--user", "lead", "tasks", "show", "task-missing"},
		{"--db", dbPath, "--user", "lead", "--format", "yaml", "config", "show"},
	}
	for _, args := range cases {
		if _, _, err := runCLI(t, append([]string{"--backend", "sqlite"}, args...)); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestCLITextFormat(t *testing.T) {
	run := testWorkspace(t)
	run("--user", "lead", "tasks", "create", "--title", "Text rendering", "--assignee", "dev-1")

	stdout := runText(t, "--user", "lead", "tasks", "list")
	for _, want := range []string{"STATUS", "New", "dev-1", "Text rendering"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in text output; got:\n%s", want, stdout)
		}
	}
}

func TestParseDeadline(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01", time.Date(2026, 3, 1, 21, 59, 59, 0, time.UTC)},
		{"2026-03-01 09:30", time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)},
		{"2026-03-01T09:30:15", time.Date(2026, 3, 1, 7, 30, 15, 0, time.UTC)},
		{"2026-03-01T09:30:00Z", time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"none", time.Time{}},
	}
	for _, tc := range cases {
		got, err := parseDeadline(tc.in, loc)
		if err != nil {
			t.Fatalf("parseDeadline(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parseDeadline(%q) = %s; want %s", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "next week", "2026-13-01"} {
		if _, err := parseDeadline(bad, loc); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestMentionsIn(t *testing.T) {
	got := mentionsIn("@ana please sync with @bo. cc @ana, mail me@example.com")
	want := []string{"ana", "bo"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("mentionsIn = %v; want %v", got, want)
	}
}
