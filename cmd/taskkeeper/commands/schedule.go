package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/store"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// newScheduleCmd creates the `taskkeeper schedule` command group for
// inspecting persisted task state without starting the poller.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect persisted task state",
		Long: `Inspect the scheduler's persisted task state directly, without
starting the poller.

Examples:
  taskkeeper schedule list --config ./tasks.yaml
  taskkeeper schedule status T --config ./tasks.yaml`,
	}

	cmd.AddCommand(
		newScheduleListCmd(),
		newScheduleStatusCmd(),
	)

	return cmd
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every persisted task and its current state",
		RunE:  runScheduleList,
	}
}

func runScheduleList(cmd *cobra.Command, _ []string) error {
	_, env, err := loadTaskConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.OpenSQLiteStore(env.DBPath, func() time.Time { return time.Now().UTC() })
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer st.Close()

	var names []string
	var tasks map[string]*task.TaskRecord
	err = st.Transaction(context.Background(), func(state *task.SchedulerState) error {
		tasks = state.Tasks
		for name := range state.Tasks {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading state: %w", err)
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Println("no tasks registered yet")
		return nil
	}
	for _, name := range names {
		printTaskSummary(tasks[name])
	}
	return nil
}

func newScheduleStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show one task's persisted execution history",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleStatus,
	}
}

func runScheduleStatus(cmd *cobra.Command, args []string) error {
	name := args[0]

	_, env, err := loadTaskConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.OpenSQLiteStore(env.DBPath, func() time.Time { return time.Now().UTC() })
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer st.Close()

	var rec *task.TaskRecord
	err = st.Transaction(context.Background(), func(state *task.SchedulerState) error {
		rec = state.Tasks[name]
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading state: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no persisted task named %q", name)
	}
	printTaskSummary(rec)
	return nil
}

func printTaskSummary(rec *task.TaskRecord) {
	fmt.Printf("%s\n", rec.Name)
	fmt.Printf("  cron:            %s\n", rec.CronExpression)
	fmt.Printf("  retry delay:     %s\n", rec.RetryDelay())
	fmt.Printf("  running:         %v\n", rec.Running)
	fmt.Printf("  last attempt:    %s\n", formatTime(rec.LastAttemptTime))
	fmt.Printf("  last success:    %s\n", formatTime(rec.LastSuccessTime))
	fmt.Printf("  last failure:    %s\n", formatTime(rec.LastFailureTime))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
