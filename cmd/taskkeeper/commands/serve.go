package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/clock"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/scheduler"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/store"
)

// newServeCmd creates the `taskkeeper serve` command that runs the poller
// until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and run until interrupted",
		Long: `Start taskkeeper as a long-running process: loads the declarative
task list, reconciles it against persisted state, and polls continuously
until interrupted (Ctrl+C).

Examples:
  taskkeeper serve --config ./tasks.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := scheduler.Initialize(ctx, st, clock.RealClock{}, logger, regs, scheduler.Options{PollIntervalMs: cfg.PollIntervalMs})
	if err != nil {
		return fmt.Errorf("initializing scheduler: %w", err)
	}

	logger.Info("taskkeeper running, press Ctrl+C to stop", "tasks", len(regs))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}
