package runtime

import (
	"time"

	"github.com/lambda-feedback/procvisor/internal/execution/supervisor"
)

// RunRequest is the body of a run request. Unset fields fall
// back to the configured defaults.
type RunRequest struct {
	// Args are appended to the configured arguments
	Args []string `json:"args,omitempty"`

	// Env holds additional environment variables
	Env map[string]string `json:"env,omitempty"`

	// TimeoutMs bounds the run. Zero disables the timeout.
	TimeoutMs *int64 `json:"timeout_ms,omitempty"`

	Collect          *bool `json:"collect,omitempty"`
	WaitClose        *bool `json:"wait_close,omitempty"`
	ForceStopOnError *bool `json:"force_stop_on_error,omitempty"`
}

func (r RunRequest) options() supervisor.Options {
	return supervisor.Options{
		Env:              r.Env,
		Collect:          r.Collect,
		WaitForClose:     r.WaitClose,
		ForceStopOnError: r.ForceStopOnError,
	}
}

// RunResponse describes a completed run.
type RunResponse struct {
	RunID      string             `json:"run_id"`
	Pid        int                `json:"pid"`
	DurationMs int64              `json:"duration_ms"`
	ExitCode   int                `json:"exit_code"`
	Signal     string             `json:"signal,omitempty"`
	Stdout     string             `json:"stdout"`
	Stderr     string             `json:"stderr"`
	Error      string             `json:"error,omitempty"`
	Outcome    supervisor.Outcome `json:"outcome"`

	// Rejection is the reason the run was rejected, if it was
	Rejection string `json:"rejection,omitempty"`
}

func newRunResponse(runID string, pid int, duration time.Duration, res supervisor.Result) RunResponse {
	resp := RunResponse{
		RunID:      runID,
		Pid:        pid,
		DurationMs: duration.Milliseconds(),
		ExitCode:   res.ExitCode,
		Signal:     res.Signal,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Outcome:    res.Outcome,
	}

	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	return resp
}
