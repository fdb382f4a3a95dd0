package cli

import (
	"context"
	"fmt"
	"strings"

	"tasksync/internal/drag"
	"tasksync/internal/model"
	"tasksync/internal/session"
	"tasksync/internal/statusutil"
	"tasksync/internal/store"
	"tasksync/internal/taskerr"

	"github.com/spf13/cobra"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Task commands",
	}
	cmd.AddCommand(newTasksCreateCmd(app))
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksSetCmd(app))
	cmd.AddCommand(newTasksMoveCmd(app))
	cmd.AddCommand(newTasksDeleteCmd(app))
	cmd.AddCommand(newTasksHistoryCmd(app))
	return cmd
}

// taskFlags are the editable task fields shared by create and set.
type taskFlags struct {
	title       string
	description string
	assignee    string
	priority    string
	status      string
	project     string
	deadline    string
	estimate    float64
	progress    int
	tags        []string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Task title")
	cmd.Flags().StringVar(&f.description, "description", "", "Task description (markdown)")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "Assignee user id (empty = unassigned)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "Priority (critical|high|medium|low)")
	cmd.Flags().StringVar(&f.status, "status", "", "Status (new|inProgress|review|done|cancelled)")
	cmd.Flags().StringVar(&f.project, "project", "", "Project id")
	cmd.Flags().StringVar(&f.deadline, "deadline", "", "Deadline (YYYY-MM-DD, YYYY-MM-DD HH:MM, RFC3339, or none)")
	cmd.Flags().Float64Var(&f.estimate, "estimate", 0, "Estimated time in hours")
	cmd.Flags().IntVar(&f.progress, "progress", 0, "Progress percent (0-100)")
	cmd.Flags().StringArrayVar(&f.tags, "tag", nil, "Tag (repeatable; on set, replaces all tags)")
}

func (f *taskFlags) newTask() (model.Task, error) {
	t := model.Task{
		Title:         f.title,
		Description:   f.description,
		Assignee:      f.assignee,
		Project:       f.project,
		EstimatedTime: f.estimate,
		Progress:      f.progress,
		Tags:          f.tags,
	}
	if f.priority != "" {
		p, err := statusutil.ParsePriority(f.priority)
		if err != nil {
			return model.Task{}, err
		}
		t.Priority = p
	}
	if f.status != "" {
		s, err := statusutil.ParseStatus(f.status)
		if err != nil {
			return model.Task{}, err
		}
		t.Status = s
	}
	if f.deadline != "" {
		d, err := parseDeadline(f.deadline, nil)
		if err != nil {
			return model.Task{}, err
		}
		if !d.IsZero() {
			t.Deadline = &d
		}
	}
	return t, nil
}

// patch builds a patch from the flags the user actually passed.
func (f *taskFlags) patch(cmd *cobra.Command) (model.Patch, error) {
	var p model.Patch
	changed := cmd.Flags().Changed
	if changed("title") {
		p.Title = &f.title
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("assignee") {
		p.Assignee = &f.assignee
	}
	if changed("priority") {
		v, err := statusutil.ParsePriority(f.priority)
		if err != nil {
			return p, err
		}
		p.Priority = &v
	}
	if changed("status") {
		v, err := statusutil.ParseStatus(f.status)
		if err != nil {
			return p, err
		}
		p.Status = &v
	}
	if changed("project") {
		p.Project = &f.project
	}
	if changed("deadline") {
		d, err := parseDeadline(f.deadline, nil)
		if err != nil {
			return p, err
		}
		p.Deadline = &d
	}
	if changed("estimate") {
		p.EstimatedTime = &f.estimate
	}
	if changed("progress") {
		p.Progress = &f.progress
	}
	if changed("tag") {
		tags := append([]string{}, f.tags...)
		p.Tags = &tags
	}
	return p, nil
}

func newTasksCreateCmd(app *App) *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (waits for the store to confirm)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				t, err := f.newTask()
				if err != nil {
					return err
				}
				created, err := s.Repo.CreateTask(ctx, t, s.User)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, envelope{Data: created, text: func() string { return taskDetail(created) }})
			})
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTasksListCmd(app *App) *cobra.Command {
	var (
		statuses []string
		assignee string
		project  string
		tag      string
		sortBy   string
		desc     bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter store.Filter
			for _, v := range statuses {
				st, err := statusutil.ParseStatus(v)
				if err != nil {
					return writeErr(cmd, err)
				}
				filter.Statuses = append(filter.Statuses, st)
			}
			if cmd.Flags().Changed("assignee") {
				filter.Assignee = &assignee
			}
			if cmd.Flags().Changed("project") {
				filter.Project = &project
			}
			filter.Tag = strings.TrimSpace(tag)
			field, ok := store.ParseSortField(sortBy)
			if !ok {
				return writeErr(cmd, taskerr.InvalidArgument("unknown sort field %q", sortBy))
			}
			sort := store.Sort{Field: field, Desc: desc}

			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				tasks, err := s.Repo.Query(ctx, filter, sort)
				if err != nil {
					return err
				}
				total := len(tasks)
				if limit > 0 && len(tasks) > limit {
					tasks = tasks[:limit]
				}
				return writeOut(cmd, app, envelope{
					Data: tasks,
					Meta: map[string]any{"total": total, "returned": len(tasks), "sort": string(field)},
					text: func() string { return taskTable(tasks) },
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Filter by assignee (empty string = unassigned)")
	cmd.Flags().StringVar(&project, "project", "", "Filter by project")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by tag")
	cmd.Flags().StringVar(&sortBy, "sort", "createdAt", "Sort field (createdAt|updatedAt|deadline|priority|progress|status|title)")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max tasks to return (0 = all)")
	return cmd
}

func newTasksShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				t, err := cachedTask(s, args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, envelope{Data: t, text: func() string { return taskDetail(t) }})
			})
		},
	}
}

func newTasksSetCmd(app *App) *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "set <task-id>",
		Short: "Edit task fields (only the flags passed are changed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.patch(cmd)
			if err != nil {
				return writeErr(cmd, err)
			}
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				t, err := s.Repo.Mutate(ctx, args[0], p, s.User)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, envelope{Data: t, text: func() string { return taskDetail(t) }})
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newTasksMoveCmd(app *App) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "move <task-id> <status>",
		Short: "Move a task to another board column (same as dragging its card)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := statusutil.ParseStatus(args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				t, err := cachedTask(s, args[0])
				if err != nil {
					return err
				}
				out, err := dragTo(ctx, s.Drag, t, dest, index)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, envelope{
					Data: out.Task,
					Meta: map[string]any{"outcome": string(out.Kind)},
					text: func() string { return fmt.Sprintf("%s: %s\n%s", out.Kind, out.Task.ID, taskDetail(out.Task)) },
				})
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "Position in the destination column")
	return cmd
}

// dragTo replays a full drag gesture: pick up from the card's current slot, hover the
// destination, drop.
func dragTo(ctx context.Context, m *drag.Manager, t model.Task, dest model.Status, index int) (drag.Outcome, error) {
	src := 0
	for i, c := range m.Column(t.Status) {
		if c.ID == t.ID {
			src = i
			break
		}
	}
	sess, err := m.PickUp(t.ID, t.Status, src)
	if err != nil {
		return drag.Outcome{}, err
	}
	if err := sess.Over(dest, index); err != nil {
		sess.Cancel()
		return drag.Outcome{}, err
	}
	return sess.Drop(ctx)
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task (waits for the store to confirm)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				id := strings.TrimSpace(args[0])
				if err := s.Repo.DeleteTask(ctx, id); err != nil {
					return err
				}
				return writeOut(cmd, app, envelope{
					Data: map[string]any{"id": id, "deleted": true},
					text: func() string { return "deleted " + id },
				})
			})
		},
	}
}

func newTasksHistoryCmd(app *App) *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show a task's change history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				t, err := cachedTask(s, args[0])
				if err != nil {
					return err
				}
				entries := make([]model.TaskHistoryEntry, 0, len(t.History))
				for _, h := range t.History {
					if field == "" || h.Field == field {
						entries = append(entries, h)
					}
				}
				return writeOut(cmd, app, envelope{Data: entries, text: func() string { return historyTable(entries) }})
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "Only entries for this field")
	return cmd
}

func cachedTask(s *session.Session, id string) (model.Task, error) {
	id = strings.TrimSpace(id)
	t, ok := s.Repo.Get(id)
	if !ok {
		return model.Task{}, taskerr.NotFoundError{Kind: "task", ID: id}
	}
	return t, nil
}
