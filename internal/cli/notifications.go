package cli

import (
	"context"

	"tasksync/internal/session"

	"github.com/spf13/cobra"
)

func newNotificationsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"inbox"},
		Short:   "Notifications for the current user",
	}
	cmd.AddCommand(newNotificationsListCmd(app))
	cmd.AddCommand(newNotificationsReadCmd(app))
	return cmd
}

func newNotificationsListCmd(app *App) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				ns, err := s.Fanout.List(ctx, s.User, unread)
				if err != nil {
					return err
				}
				unreadCount := 0
				for _, n := range ns {
					if !n.Read {
						unreadCount++
					}
				}
				return writeOut(cmd, app, envelope{
					Data: ns,
					Meta: map[string]any{"total": len(ns), "unread": unreadCount},
					text: func() string { return notificationTable(ns) },
				})
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notifications")
	return cmd
}

func newNotificationsReadCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				n, err := s.Fanout.MarkRead(ctx, args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, envelope{
					Data: n,
					text: func() string { return "read " + n.ID },
				})
			})
		},
	}
}
