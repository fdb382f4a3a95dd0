package cli

import (
	"github.com/spf13/cobra"

	"tasksync/internal/tui"
)

func newBoardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Open the interactive board (drag cards between status columns)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(cmd, app)
		},
	}
}

func runBoard(cmd *cobra.Command, app *App) error {
	s, err := openSession(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()
	if err := tui.RunBoard(cmdContext(cmd), s); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}
