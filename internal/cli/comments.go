package cli

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tasksync/internal/format"
	"tasksync/internal/model"
	"tasksync/internal/session"

	"github.com/spf13/cobra"
)

var reMention = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9._-]+)`)

// mentionsIn returns the @user tokens in body, in order of first appearance.
func mentionsIn(body string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range reMention.FindAllStringSubmatch(body, -1) {
		u := strings.TrimRight(m[1], ".")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func newCommentsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Comment commands",
	}
	cmd.AddCommand(newCommentsAddCmd(app))
	cmd.AddCommand(newCommentsListCmd(app))
	return cmd
}

func newCommentsAddCmd(app *App) *cobra.Command {
	var body string
	var mentions []string

	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add a comment to a task (@user mentions notify that user)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				all := append(mentionsIn(body), mentions...)
				t, err := s.Repo.AddComment(ctx, args[0], body, all, s.User)
				if err != nil {
					return err
				}
				c := t.Comments[len(t.Comments)-1]
				return writeOut(cmd, app, envelope{
					Data: c,
					text: func() string { return fmt.Sprintf("%s commented on %s", c.CreatedBy, t.ID) },
				})
			})
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "Comment body")
	cmd.Flags().StringArrayVar(&mentions, "mention", nil, "Extra user to mention (repeatable)")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func newCommentsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's comments, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				t, err := cachedTask(s, args[0])
				if err != nil {
					return err
				}
				cs := t.Comments
				if cs == nil {
					cs = []model.TaskComment{}
				}
				return writeOut(cmd, app, envelope{
					Data: cs,
					Meta: map[string]any{"total": len(cs)},
					text: func() string {
						rows := make([][]string, 0, len(cs))
						for _, c := range cs {
							rows = append(rows, []string{c.CreatedAt.Format("2006-01-02 15:04"), c.CreatedBy, c.Content})
						}
						return format.Table{Headers: []string{"CREATED", "BY", "COMMENT"}, Rows: rows}.Text()
					},
				})
			})
		},
	}
}
