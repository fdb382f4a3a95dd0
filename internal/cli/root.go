package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"tasksync/internal/format"
	"tasksync/internal/logging"
	"tasksync/internal/session"
	"tasksync/internal/store"

	"github.com/spf13/cobra"
)

type App struct {
	User       string
	Backend    string
	DBPath     string
	LogLevel   string
	PrettyJSON bool
	Format     string
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "tasksync",
		Short:        "Task board with optimistic sync, history and notifications",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open the interactive board
  tasksync --user alice

  # Scriptable commands
  tasksync tasks create --title "Write release notes" --assignee bob
  tasksync tasks move <task-id> review

  # Direct lookup (shortcut for: tasksync tasks show <task-id>)
  tasksync task-k3j9x2ab
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive board.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runBoard(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.User, "user", envOr("TASKSYNC_USER", ""), "Acting user id (overrides currentUser in config.json)")
	cmd.PersistentFlags().StringVar(&app.Backend, "backend", envOr("TASKSYNC_BACKEND", ""), "Storage backend (sqlite|memory)")
	cmd.PersistentFlags().StringVar(&app.DBPath, "db", envOr("TASKSYNC_DB", ""), "SQLite database file")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("TASKSYNC_LOG_LEVEL", ""), "Log level (debug|info|error)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("TASKSYNC_FORMAT", "json"), "Output format (json|text)")

	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newCommentsCmd(app))
	cmd.AddCommand(newAttachmentsCmd(app))
	cmd.AddCommand(newNotificationsCmd(app))
	cmd.AddCommand(newEventsCmd(app))
	cmd.AddCommand(newBoardCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd
}

// resolved fills unset flags from the global config, then defaults.
func resolved(app *App) (App, error) {
	out := *app
	cfg, err := store.LoadConfig()
	if err != nil {
		return out, err
	}
	if out.User == "" {
		out.User = cfg.CurrentUser
	}
	if out.Backend == "" {
		out.Backend = cfg.Backend
	}
	if out.Backend == "" {
		out.Backend = store.BackendSQLite
	}
	if out.DBPath == "" {
		out.DBPath = cfg.DBPath
	}
	if out.LogLevel == "" {
		out.LogLevel = cfg.LogLevel
	}
	return out, nil
}

func newLogger(cmd *cobra.Command, level string) (*logging.Logger, error) {
	lvl := logging.LevelError
	if strings.TrimSpace(level) != "" {
		l, err := logging.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = l
	}
	return logging.New(cmd.ErrOrStderr(), lvl), nil
}

// openSession opens a session for the acting user. Callers must Close it.
func openSession(cmd *cobra.Command, app *App) (*session.Session, error) {
	r, err := resolved(app)
	if err != nil {
		return nil, err
	}
	if r.User == "" {
		return nil, errors.New("no current user; run `tasksync config set --user <id>` (or pass --user)")
	}
	log, err := newLogger(cmd, r.LogLevel)
	if err != nil {
		return nil, err
	}
	return session.Open(cmdContext(cmd), session.Options{
		User:        r.User,
		BackendName: r.Backend,
		DBPath:      r.DBPath,
		Logger:      log,
	})
}

// withSession runs fn against an open session and closes it afterwards, flushing any
// queued notifications before the process exits.
func withSession(cmd *cobra.Command, app *App, fn func(ctx context.Context, s *session.Session) error) error {
	s, err := openSession(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	runErr := fn(cmdContext(cmd), s)
	closeErr := s.Close()
	if runErr != nil {
		return writeErr(cmd, runErr)
	}
	if closeErr != nil {
		return writeErr(cmd, closeErr)
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
