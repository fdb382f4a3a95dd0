package cli

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"tasksync/internal/model"
	"tasksync/internal/session"

	"github.com/spf13/cobra"
)

func newAttachmentsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attachments",
		Short: "Attachment metadata commands (files are stored elsewhere)",
	}
	cmd.AddCommand(newAttachmentsAddCmd(app))
	return cmd
}

func newAttachmentsAddCmd(app *App) *cobra.Command {
	var (
		name        string
		url         string
		contentType string
		size        int64
	)
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Attach a file reference to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				name = path.Base(strings.TrimRight(url, "/"))
			}
			if contentType == "" {
				contentType = mime.TypeByExtension(path.Ext(name))
			}
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				t, err := s.Repo.AddAttachment(ctx, args[0], model.TaskAttachment{
					Name:        name,
					URL:         url,
					ContentType: contentType,
					Size:        size,
				}, s.User)
				if err != nil {
					return err
				}
				a := t.Attachments[len(t.Attachments)-1]
				return writeOut(cmd, app, envelope{
					Data: a,
					text: func() string { return fmt.Sprintf("attached %s to %s", a.Name, t.ID) },
				})
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Where the file lives")
	cmd.Flags().StringVar(&name, "name", "", "Display name (default: last path segment of --url)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type (default: guessed from the name)")
	cmd.Flags().Int64Var(&size, "size", 0, "Size in bytes")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
