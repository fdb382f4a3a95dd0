package cli

import (
	"fmt"
	"strings"

	"tasksync/internal/logging"
	"tasksync/internal/store"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Global config (~/.tasksync/config.json)",
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigSetCmd(app))
	return cmd
}

type configView struct {
	Path   string             `json:"path"`
	Config store.GlobalConfig `json:"config"`
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the global config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := store.ConfigPath()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			v := configView{Path: path, Config: *cfg}
			return writeOut(cmd, app, envelope{Data: v, text: func() string {
				return fmt.Sprintf("%s\n  currentUser: %s\n  backend: %s\n  dbPath: %s\n  logLevel: %s",
					path, orDash(cfg.CurrentUser), orDash(cfg.Backend), orDash(cfg.DBPath), orDash(cfg.LogLevel))
			}})
		},
	}
}

func newConfigSetCmd(app *App) *cobra.Command {
	var user, backend, dbPath, logLevel string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update global config values (only the flags passed are changed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			changed := cmd.Flags().Changed
			if !changed("user") && !changed("backend") && !changed("db") && !changed("log-level") {
				return writeErr(cmd, fmt.Errorf("nothing to set (pass --user, --backend, --db or --log-level)"))
			}
			// These flags shadow the persistent ones of the same name; read them from
			// this command's local set.
			if changed("user") {
				cfg.CurrentUser = strings.TrimSpace(user)
			}
			if changed("backend") {
				cfg.Backend = strings.TrimSpace(backend)
			}
			if changed("db") {
				cfg.DBPath = strings.TrimSpace(dbPath)
			}
			if changed("log-level") {
				if _, err := logging.ParseLevel(logLevel); err != nil && strings.TrimSpace(logLevel) != "" {
					return writeErr(cmd, err)
				}
				cfg.LogLevel = strings.TrimSpace(logLevel)
			}
			if err := store.SaveConfig(cfg); err != nil {
				return writeErr(cmd, err)
			}
			path, _ := store.ConfigPath()
			return writeOut(cmd, app, envelope{Data: configView{Path: path, Config: *cfg}, text: func() string { return "saved " + path }})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Current user id")
	cmd.Flags().StringVar(&backend, "backend", "", "Storage backend (sqlite|memory)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|error)")
	return cmd
}
