package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lambda-feedback/procvisor/internal/execution/spawn"
)

var (
	ErrAlreadyStarted   = errors.New("process already started")
	ErrAlreadyStopped   = errors.New("process already stopped")
	ErrTimeoutCompleted = errors.New("timeout already completed")
	ErrTimeoutExpired   = errors.New("timeout expired")
	ErrSpawnFailed      = errors.New("failed to spawn process")
	ErrStream           = errors.New("stream error")
	ErrNonZeroExit      = errors.New("non-zero exit")
)

// State is the lifecycle state of a supervised process.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Outcome tells apart the cases that share the -1 exit code sentinel.
type Outcome string

const (
	OutcomeNeverStarted Outcome = "never_started"
	OutcomeExited       Outcome = "exited"
	OutcomeSignaled     Outcome = "signaled"
)

// Result is the outcome of a single run.
type Result struct {
	// ExitCode is the exit code of the process, or -1 if the
	// process never started or was killed by a signal
	ExitCode int

	// Signal is the name of the signal that terminated the process
	Signal string

	// Stdout is the trimmed standard output, if collected
	Stdout string

	// Stderr is the trimmed standard error, if collected
	Stderr string

	// Err is the first error observed during the run
	Err error

	// Outcome describes how the run ended
	Outcome Outcome
}

type resultJSON struct {
	ExitCode int     `json:"exit_code"`
	Signal   string  `json:"signal,omitempty"`
	Stdout   string  `json:"stdout"`
	Stderr   string  `json:"stderr"`
	Error    string  `json:"error,omitempty"`
	Outcome  Outcome `json:"outcome"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		ExitCode: r.ExitCode,
		Signal:   r.Signal,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
		Outcome:  r.Outcome,
	}

	if r.Err != nil {
		out.Error = r.Err.Error()
	}

	return json.Marshal(out)
}

// ExitError is returned by RejectNonZero.
type ExitError struct {
	Status spawn.Status
}

func (e *ExitError) Error() string {
	if e.Status.Signal != "" {
		return fmt.Sprintf("process killed by signal %s", e.Status.Signal)
	}

	return fmt.Sprintf("process exited with code %d", e.Status.ExitCode())
}

func (e *ExitError) Is(target error) bool {
	return target == ErrNonZeroExit
}
