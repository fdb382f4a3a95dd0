package cli

import (
	"context"
	"strconv"
	"time"

	"tasksync/internal/format"
	"tasksync/internal/model"
	"tasksync/internal/session"
	"tasksync/internal/store"

	"github.com/spf13/cobra"
)

func newEventsCmd(app *App) *cobra.Command {
	var limit int
	var taskID string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the local event journal",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries (oldest-first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session.Session) error {
				evs, err := s.Journal.List(ctx, store.EventQuery{TaskID: taskID, Limit: limit})
				if err != nil {
					return err
				}
				return writeOut(cmd, app, envelope{Data: evs, text: func() string { return eventTable(evs) }})
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 200, "Max events to return, newest kept (0 = all)")
	listCmd.Flags().StringVar(&taskID, "task", "", "Only events for this task id")

	cmd.AddCommand(listCmd)
	return cmd
}

func eventTable(evs []model.Event) string {
	rows := make([][]string, 0, len(evs))
	for _, ev := range evs {
		rows = append(rows, []string{
			ev.TS.Local().Format(time.RFC3339),
			ev.TaskID,
			strconv.FormatInt(ev.Seq, 10),
			ev.Type,
			ev.ActorID,
			string(ev.Payload),
		})
	}
	return format.Table{Headers: []string{"TS", "TASK", "SEQ", "TYPE", "ACTOR", "PAYLOAD"}, Rows: rows}.Text()
}
