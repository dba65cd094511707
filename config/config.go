package config

import (
	"time"

	"github.com/lambda-feedback/procvisor/internal/execution/supervisor"
	"github.com/lambda-feedback/procvisor/util/conf"
)

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Exec holds the supervised command and its run defaults
	Exec ExecConfig `conf:"exec"`

	// Auth configures the api key check of the http routes
	Auth AuthConfig `conf:"auth"`

	// MaxConcurrency is the maximum number of runs in flight
	MaxConcurrency int `conf:"max_concurrency"`
}

type AuthConfig struct {
	// Key is the api key that requests must present. Empty disables the check.
	Key string `conf:"key"`
}

type ExecConfig struct {
	// Command is the command to supervise
	Command string `conf:"command"`

	// Args are the arguments to pass to the command
	Args []string `conf:"args"`

	// Cwd is the working directory of the process
	Cwd string `conf:"cwd"`

	// Env holds additional environment variables for the process
	Env map[string]string `conf:"env"`

	// EnvFile is a dotenv file with environment variables for the
	// process. Variables in Env take precedence.
	EnvFile string `conf:"env_file"`

	// Shell runs the command line through the platform shell
	Shell bool `conf:"shell"`

	// Timeout bounds a single run. Zero disables the timeout.
	Timeout time.Duration `conf:"timeout"`

	// Collect enables the collection of stdout and stderr
	Collect bool `conf:"collect"`

	// WaitClose resolves runs once the output streams are closed
	WaitClose bool `conf:"wait_close"`

	// ForceStopOnError kills the process if it ignores the stop signal
	ForceStopOnError bool `conf:"force_stop_on_error"`

	// RejectOnError rejects runs that observed an error
	RejectOnError bool `conf:"reject_on_error"`

	// RejectOnExit rejects runs that exited with a non-zero code
	RejectOnExit bool `conf:"reject_on_exit"`

	// KillDeadline is the time a forced stop waits before killing
	KillDeadline time.Duration `conf:"kill_deadline"`
}

var execDefaults = map[string]any{
	"collect":             true,
	"wait_close":          true,
	"force_stop_on_error": false,
	"reject_on_error":     false,
	"reject_on_exit":      false,
	"kill_deadline":       "3s",
}

var DefaultConfig = conf.DefaultConfig(conf.MergeDefaults("exec", execDefaults)).With(map[string]any{
	"log_level":       "info",
	"log_format":      "production",
	"max_concurrency": 4,
})

// Options converts the exec config into supervisor options.
func (c ExecConfig) Options() supervisor.Options {
	opts := supervisor.Options{
		Collect:          supervisor.Bool(c.Collect),
		WaitForClose:     supervisor.Bool(c.WaitClose),
		ForceStopOnError: supervisor.Bool(c.ForceStopOnError),
		Shell:            supervisor.Bool(c.Shell),
		Dir:              c.Cwd,
		Env:              c.Env,
		KillDeadline:     c.KillDeadline,
	}

	if c.RejectOnError {
		opts.RejectOnError = supervisor.RejectErrors
	}

	if c.RejectOnExit {
		opts.RejectOnExit = supervisor.RejectNonZero
	}

	return opts
}
