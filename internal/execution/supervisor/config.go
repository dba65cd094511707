package supervisor

import (
	"os"
	"time"

	"github.com/lambda-feedback/procvisor/internal/execution/spawn"
	"github.com/lambda-feedback/procvisor/internal/execution/timeout"
	"go.uber.org/zap"
)

// defaultKillDeadline is the time a forced stop waits for the
// process to terminate before sending the kill signal.
const defaultKillDeadline = 3 * time.Second

// ErrorPolicy maps an error observed during a run to the error the
// run is rejected with. A nil policy, or a nil return value, lets
// the run resolve with the error recorded in the result.
type ErrorPolicy func(error) error

// ExitPolicy maps the exit status of the process to the error the
// run is rejected with. Returning nil accepts the status.
type ExitPolicy func(spawn.Status) error

// StreamFunc intercepts every chunk read from an output stream.
type StreamFunc func(chunk string, sc StreamContext)

// StreamContext is handed to stream interception callbacks.
type StreamContext struct {
	// Timeout is the timeout attached to the run, if any
	Timeout timeout.Token

	// Log is the logger of the run
	Log *zap.Logger

	// Stop stops the process. It does not wait for a forced
	// stop to complete.
	Stop func(StopOptions) error

	// ReportError records an error detected in the output
	// and routes it through the error path of the run
	ReportError func(error)
}

// Options configure a run. Unset fields fall back to the options
// given at construction, then to the defaults.
type Options struct {
	// Logging enables logging for the run. Default true.
	Logging *bool

	// Collect enables collection of stdout and stderr. Default true.
	Collect *bool

	// WaitForClose resolves the run once the output streams are
	// closed, rather than as soon as the process exits. Default true.
	WaitForClose *bool

	// ForceStopOnError escalates to a kill when stopping due to
	// an error. Default false.
	ForceStopOnError *bool

	// RejectOnError is the policy applied to errors of the run.
	RejectOnError ErrorPolicy

	// RejectOnExit is the policy applied to the exit status.
	RejectOnExit ExitPolicy

	// Timeout is a deadline attached to the run
	Timeout timeout.Token

	// Dir is the working directory of the process
	Dir string

	// Env holds environment variables for the process. Maps are
	// merged key by key.
	Env map[string]string

	// Shell runs the command line through the platform shell.
	Shell *bool

	// OnStdout intercepts chunks written to stdout
	OnStdout StreamFunc

	// OnStderr intercepts chunks written to stderr
	OnStderr StreamFunc

	// KillDeadline is the time a forced stop waits before
	// killing the process. Default 3s.
	KillDeadline time.Duration
}

// RunOptions are the per-call options of Run.
type RunOptions struct {
	Options

	// ExtraArgs are appended to the arguments of the supervisor
	ExtraArgs []string
}

// StopOptions configure a stop request.
type StopOptions struct {
	// Force kills the process if it does not terminate in time
	Force bool

	// Signal is the signal to send. Defaults to the platform
	// termination signal.
	Signal os.Signal
}

// Bool returns a pointer to v, for use in Options.
func Bool(v bool) *bool {
	return &v
}

// RejectErrors rejects the run with the observed error.
func RejectErrors(err error) error {
	return err
}

// RejectNonZero rejects the run if the process exited with
// a non-zero code or was killed by a signal.
func RejectNonZero(status spawn.Status) error {
	if status.Success() {
		return nil
	}

	return &ExitError{Status: status}
}

// Merge returns o with the set fields of override applied on top.
func (o Options) Merge(override Options) Options {
	merged := o

	merged.Logging = pick(override.Logging, o.Logging)
	merged.Collect = pick(override.Collect, o.Collect)
	merged.WaitForClose = pick(override.WaitForClose, o.WaitForClose)
	merged.ForceStopOnError = pick(override.ForceStopOnError, o.ForceStopOnError)
	merged.Shell = pick(override.Shell, o.Shell)

	if override.RejectOnError != nil {
		merged.RejectOnError = override.RejectOnError
	}
	if override.RejectOnExit != nil {
		merged.RejectOnExit = override.RejectOnExit
	}
	if override.Timeout != nil {
		merged.Timeout = override.Timeout
	}
	if override.Dir != "" {
		merged.Dir = override.Dir
	}
	if override.OnStdout != nil {
		merged.OnStdout = override.OnStdout
	}
	if override.OnStderr != nil {
		merged.OnStderr = override.OnStderr
	}
	if override.KillDeadline > 0 {
		merged.KillDeadline = override.KillDeadline
	}

	if o.Env != nil || override.Env != nil {
		merged.Env = make(map[string]string, len(o.Env)+len(override.Env))
		for k, v := range o.Env {
			merged.Env[k] = v
		}
		for k, v := range override.Env {
			merged.Env[k] = v
		}
	}

	return merged
}

// runConfig is the resolved configuration of a run.
type runConfig struct {
	logging          bool
	collect          bool
	waitForClose     bool
	forceStopOnError bool
	shell            bool
	rejectOnError    ErrorPolicy
	rejectOnExit     ExitPolicy
	timeout          timeout.Token
	dir              string
	env              map[string]string
	onStdout         StreamFunc
	onStderr         StreamFunc
	killDeadline     time.Duration
}

func (o Options) resolve() runConfig {
	cfg := runConfig{
		logging:          valueOr(o.Logging, true),
		collect:          valueOr(o.Collect, true),
		waitForClose:     valueOr(o.WaitForClose, true),
		forceStopOnError: valueOr(o.ForceStopOnError, false),
		shell:            valueOr(o.Shell, false),
		rejectOnError:    o.RejectOnError,
		rejectOnExit:     o.RejectOnExit,
		timeout:          o.Timeout,
		dir:              o.Dir,
		env:              o.Env,
		onStdout:         o.OnStdout,
		onStderr:         o.OnStderr,
		killDeadline:     o.KillDeadline,
	}

	if cfg.killDeadline <= 0 {
		cfg.killDeadline = defaultKillDeadline
	}

	return cfg
}

func (c runConfig) callback(stream spawn.Stream) StreamFunc {
	if stream == spawn.Stderr {
		return c.onStderr
	}

	return c.onStdout
}

func pick[T any](override, base *T) *T {
	if override != nil {
		return override
	}

	return base
}

func valueOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}

	return *v
}
