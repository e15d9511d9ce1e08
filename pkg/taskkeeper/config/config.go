// Package config loads taskkeeper's runtime configuration: .env-backed
// environment defaults (github.com/joho/godotenv) layered under a
// declarative YAML task list (gopkg.in/yaml.v3) that binds each entry to a
// named callback from a caller-supplied registry, since callbacks are code
// and cannot round-trip through YAML themselves.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/errs"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// CallbackRegistry maps a builtin name (as referenced by a YAML task
// entry's `callback` field) to the task.Callback it resolves to.
type CallbackRegistry map[string]task.Callback

// Env holds the environment-derived defaults loaded before the YAML file is
// read. Of these, only the poll interval can be overridden, by the YAML
// file's poll_interval_ms; no CLI flag overrides any of them.
type Env struct {
	StateDir          string
	DBPath            string
	PollIntervalMs    int64
	PollIntervalIsSet bool
}

// LoadEnv loads .env and .env.local (silently ignoring missing files) and
// reads TASKKEEPER_STATE_DIR,
// TASKKEEPER_DB_PATH and TASKKEEPER_POLL_INTERVAL from the process
// environment. godotenv.Load never overwrites variables already set in the
// environment.
func LoadEnv() (Env, error) {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}

	env := Env{
		StateDir: envOrDefault("TASKKEEPER_STATE_DIR", "."),
		DBPath:   envOrDefault("TASKKEEPER_DB_PATH", "taskkeeper.db"),
	}

	if raw := os.Getenv("TASKKEEPER_POLL_INTERVAL"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Env{}, fmt.Errorf("parsing TASKKEEPER_POLL_INTERVAL: %w", err)
		}
		env.PollIntervalMs = ms
		env.PollIntervalIsSet = true
	}

	return env, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// TaskEntry is one task-list entry in the declarative YAML config.
type TaskEntry struct {
	Name              string `yaml:"name"`
	Cron              string `yaml:"cron"`
	Callback          string `yaml:"callback"`
	RetryDelaySeconds int64  `yaml:"retry_delay_seconds"`
}

// File is the top-level shape of the declarative task-list config file.
type File struct {
	PollIntervalMs int64       `yaml:"poll_interval_ms"`
	Tasks          []TaskEntry `yaml:"tasks"`
}

// LoadFile reads and parses a YAML task-list file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return &f, nil
}

// Registrations resolves f's task entries into []task.Registration by
// looking each entry's callback name up in registry. Returns a named
// *errs.Error if an entry references a callback the registry doesn't
// define.
func (f *File) Registrations(registry CallbackRegistry) ([]task.Registration, error) {
	regs := make([]task.Registration, 0, len(f.Tasks))
	for _, entry := range f.Tasks {
		cb, ok := registry[entry.Callback]
		if !ok {
			return nil, errs.NewTask(errs.KindCallbackType, entry.Name,
				fmt.Sprintf("callback %q is not registered", entry.Callback))
		}
		regs = append(regs, task.Registration{
			Name:           entry.Name,
			CronExpression: entry.Cron,
			Callback:       cb,
			RetryDelay:     time.Duration(entry.RetryDelaySeconds) * time.Second,
		})
	}
	return regs, nil
}
