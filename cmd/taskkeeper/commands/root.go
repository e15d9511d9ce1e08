// Package commands implements taskkeeper's CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskkeeper",
		Short: "taskkeeper - a declarative, persistent cron task scheduler",
		Long: `taskkeeper runs a set of declaratively registered tasks on cron
schedules, persisting execution history durably so a restart never
re-fires a task that already ran, and retrying failed tasks after a
per-task delay.

Examples:
  taskkeeper serve --config ./tasks.yaml
  taskkeeper schedule list --config ./tasks.yaml
  taskkeeper schedule status T --config ./tasks.yaml
  taskkeeper validate --config ./tasks.yaml`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newScheduleCmd(),
		newValidateCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "tasks.yaml", "path to the declarative task-list config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
