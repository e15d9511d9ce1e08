package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/reconcile"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/store"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// newValidateCmd creates the `taskkeeper validate` command: runs
// reconciliation against an in-memory copy of the task list's persisted
// state without mutating the real database, so a config change can be
// checked before `serve` picks it up.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the task-list config without starting the poller",
		Long: `Parses --config, resolves every entry's callback, and runs the
same reconciliation the poller would run on startup, against a snapshot of
the persisted state. Reports what would change without writing anything.

Examples:
  taskkeeper validate --config ./tasks.yaml`,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd)

	cfg, env, err := loadTaskConfig(cmd)
	if err != nil {
		return err
	}

	db, err := openDB(env)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := callbackRegistry(logger, env, db)
	regs, err := cfg.Registrations(registry)
	if err != nil {
		return fmt.Errorf("resolving task registrations: %w", err)
	}

	st, err := store.OpenSQLiteStore(env.DBPath, func() time.Time { return time.Now().UTC() })
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer st.Close()

	// Returning errDryRun from the transaction rolls it back, so the loaded
	// state is never written back.
	errDryRun := errors.New("dry run")
	var result reconcile.Result
	err = st.Transaction(context.Background(), func(state *task.SchedulerState) error {
		snapshot := state.Clone()
		var rerr error
		result, rerr = reconcile.Reconcile(regs, snapshot, reconcile.Options{PollIntervalMs: cfg.PollIntervalMs}, logger)
		if rerr != nil {
			return rerr
		}
		return errDryRun
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("%d task(s) would be registered\n", len(result.RegisteredNames))
	if result.FirstTime {
		fmt.Println("this would be the first-ever initialization")
		return nil
	}
	if !result.Changed() {
		fmt.Println("no changes: config matches persisted state")
		return nil
	}
	for _, name := range result.Added {
		fmt.Printf("  + add %s\n", name)
	}
	for _, name := range result.Removed {
		fmt.Printf("  - remove %s\n", name)
	}
	for _, c := range result.Modified {
		fmt.Printf("  ~ %s: %s changed (%s -> %s)\n", c.Name, c.Field, c.From, c.To)
	}
	return nil
}
