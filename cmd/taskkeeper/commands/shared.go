package commands

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/builtins"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/config"
)

// newLogger builds the shared slog.Logger, text-formatted to stderr and
// switched to debug level under --verbose.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loadTaskConfig reads --config's YAML task list and layers the
// TASKKEEPER_* environment defaults underneath it.
func loadTaskConfig(cmd *cobra.Command) (*config.File, config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, config.Env{}, fmt.Errorf("loading environment: %w", err)
	}

	path, _ := cmd.Root().PersistentFlags().GetString("config")
	f, err := config.LoadFile(path)
	if err != nil {
		return nil, config.Env{}, fmt.Errorf("loading %s: %w", path, err)
	}
	if f.PollIntervalMs == 0 && env.PollIntervalIsSet {
		f.PollIntervalMs = env.PollIntervalMs
	}
	return f, env, nil
}

// openDB opens the central SQLite database used both for scheduler state
// and for the db-vacuum builtin to operate against.
func openDB(env config.Env) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", env.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", env.DBPath, err)
	}
	return db, nil
}

// callbackRegistry adapts builtins.Registry's task.Callback map into a
// config.CallbackRegistry, the type the declarative loader expects.
func callbackRegistry(logger *slog.Logger, env config.Env, db *sql.DB) config.CallbackRegistry {
	reg := make(config.CallbackRegistry)
	for name, cb := range builtins.Registry(logger, env.StateDir, db) {
		reg[name] = cb
	}
	return reg
}
