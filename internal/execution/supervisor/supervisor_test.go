//go:build !windows

package supervisor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lambda-feedback/procvisor/internal/execution/supervisor"
	"github.com/lambda-feedback/procvisor/internal/execution/timeout"
	"github.com/lambda-feedback/procvisor/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type runResult struct {
	result supervisor.Result
	err    error
}

func newSupervisor(command string, args []string, opts supervisor.Options) *supervisor.Supervisor {
	return supervisor.New(command, args, opts, supervisor.Params{
		Log: zap.NewNop(),
	})
}

// runAsync runs the supervisor in the background.
func runAsync(s *supervisor.Supervisor, opts supervisor.RunOptions) <-chan runResult {
	ch := make(chan runResult, 1)

	go func() {
		res, err := s.Run(context.Background(), opts)
		ch <- runResult{result: res, err: err}
	}()

	return ch
}

func waitStarted(t *testing.T, s *supervisor.Supervisor) {
	require.Eventually(t, func() bool {
		return s.Pid() != -1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSupervisor_Run_CollectsOutput(t *testing.T) {
	s := newSupervisor("echo", []string{"hello"}, supervisor.Options{})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.Empty(t, res.Signal)
	assert.NoError(t, res.Err)
	assert.Equal(t, supervisor.OutcomeExited, res.Outcome)

	assert.True(t, s.Stopped())
	assert.Equal(t, supervisor.StateTerminated, s.State())
	assert.Equal(t, 0, s.ExitCode())

	cached, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, res, cached)
}

func TestSupervisor_Run_CollectsStderr(t *testing.T) {
	s := newSupervisor("sh", []string{"-c", "echo out; echo err >&2; exit 4"}, supervisor.Options{})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, res.ExitCode)
	assert.Equal(t, "out", res.Stdout)
	assert.Equal(t, "err", res.Stderr)
	assert.NoError(t, res.Err)
}

func TestSupervisor_Run_SecondRunFails(t *testing.T) {
	s := newSupervisor("true", nil, supervisor.Options{})

	_, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), supervisor.RunOptions{})
	assert.ErrorIs(t, err, supervisor.ErrAlreadyStarted)
}

func TestSupervisor_Run_ConcurrentRunFails(t *testing.T) {
	s := newSupervisor("sleep", []string{"10"}, supervisor.Options{})

	ch := runAsync(s, supervisor.RunOptions{})
	waitStarted(t, s)

	_, err := s.Run(context.Background(), supervisor.RunOptions{})
	assert.ErrorIs(t, err, supervisor.ErrAlreadyStarted)

	require.NoError(t, s.Stop(context.Background(), supervisor.StopOptions{}))

	res := <-ch
	require.NoError(t, res.err)
	assert.Equal(t, "SIGTERM", res.result.Signal)
}

func TestSupervisor_Run_CollectDisabled(t *testing.T) {
	s := newSupervisor("sh", []string{"-c", "echo out; echo err >&2"}, supervisor.Options{
		Collect: supervisor.Bool(false),
	})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.Empty(t, res.Stderr)
}

func TestSupervisor_Run_CallbackSeesCollectedChunks(t *testing.T) {
	var chunks []string

	s := newSupervisor("sh", []string{"-c", "for i in 1 2 3 4 5; do echo line$i; done"}, supervisor.Options{
		OnStdout: func(chunk string, _ supervisor.StreamContext) {
			chunks = append(chunks, chunk)
		},
	})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, "line1\nline2\nline3\nline4\nline5", res.Stdout)
	assert.Equal(t, res.Stdout, strings.TrimSpace(strings.Join(chunks, "")))
}

func TestSupervisor_Run_AppendsExtraArgs(t *testing.T) {
	s := newSupervisor("echo", []string{"a"}, supervisor.Options{})

	res, err := s.Run(context.Background(), supervisor.RunOptions{
		ExtraArgs: []string{"b", "c"},
	})
	require.NoError(t, err)

	assert.Equal(t, "a b c", res.Stdout)
	assert.Contains(t, s.String(), "echo a b c")
}

func TestSupervisor_Run_MergesEnvAndDir(t *testing.T) {
	dir := t.TempDir()

	s := newSupervisor("sh", []string{"-c", "echo $PV_A$PV_B; pwd"}, supervisor.Options{
		Env: map[string]string{"PV_A": "1", "PV_B": "2"},
	})

	res, err := s.Run(context.Background(), supervisor.RunOptions{
		Options: supervisor.Options{
			Env: map[string]string{"PV_B": "3"},
			Dir: dir,
		},
	})
	require.NoError(t, err)

	lines := strings.Split(res.Stdout, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "13", lines[0])
	assert.Contains(t, lines[1], dir)
}

func TestSupervisor_Run_ShellMode(t *testing.T) {
	s := newSupervisor("echo hello | tr a-z A-Z", nil, supervisor.Options{
		Shell: supervisor.Bool(true),
	})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, "HELLO", res.Stdout)
}

func TestSupervisor_Run_WithoutWaitForClose(t *testing.T) {
	s := newSupervisor("echo", []string{"hello"}, supervisor.Options{
		WaitForClose: supervisor.Bool(false),
	})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.NoError(t, res.Err)

	<-s.Done()
}

func TestSupervisor_Run_SpawnFailure(t *testing.T) {
	s := newSupervisor("/nonexistent/procvisor-test-binary", nil, supervisor.Options{})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, supervisor.ErrSpawnFailed)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, supervisor.OutcomeNeverStarted, res.Outcome)

	assert.False(t, s.Stopped())
	assert.Equal(t, -1, s.Pid())
	assert.Equal(t, supervisor.StateTerminated, s.State())

	// there is nothing to stop
	assert.NoError(t, s.Stop(context.Background(), supervisor.StopOptions{}))
}

func TestSupervisor_Run_SpawnFailureRejected(t *testing.T) {
	s := newSupervisor("/nonexistent/procvisor-test-binary", nil, supervisor.Options{
		RejectOnError: supervisor.RejectErrors,
	})

	_, err := s.Run(context.Background(), supervisor.RunOptions{})
	assert.ErrorIs(t, err, supervisor.ErrSpawnFailed)

	res, ok := s.Result()
	require.True(t, ok)
	assert.ErrorIs(t, res.Err, supervisor.ErrSpawnFailed)
}

func TestSupervisor_Run_RejectNonZero(t *testing.T) {
	s := newSupervisor("sh", []string{"-c", "exit 3"}, supervisor.Options{
		RejectOnExit: supervisor.RejectNonZero,
	})

	_, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.ErrorIs(t, err, supervisor.ErrNonZeroExit)

	var exitErr *supervisor.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Status.ExitCode())

	<-s.Done()
	assert.Equal(t, 3, s.ExitCode())
}

func TestSupervisor_Run_CompletedTimeout(t *testing.T) {
	token := timeout.New(context.Background(), time.Second)
	token.Cancel()

	s := newSupervisor("echo", []string{"hello"}, supervisor.Options{})

	_, err := s.Run(context.Background(), supervisor.RunOptions{
		Options: supervisor.Options{Timeout: token},
	})
	assert.ErrorIs(t, err, supervisor.ErrTimeoutCompleted)

	assert.Equal(t, -1, s.Pid())
	assert.Equal(t, supervisor.StateNotStarted, s.State())

	// the supervisor was not claimed
	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Stdout)
}

func TestSupervisor_Run_TimeoutExpires(t *testing.T) {
	token := timeout.New(context.Background(), 500*time.Millisecond)
	defer token.Cancel()

	s := newSupervisor("sleep", []string{"10"}, supervisor.Options{Timeout: token})

	start := time.Now()
	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, res.Err, supervisor.ErrTimeoutExpired)
	assert.ErrorIs(t, res.Err, timeout.ErrExpired)
	assert.Equal(t, "SIGTERM", res.Signal)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, supervisor.OutcomeSignaled, res.Outcome)

	assert.True(t, s.Stopped())
	assert.False(t, util.IsProcessAlive(s.Pid()))
}

func TestSupervisor_Run_TimeoutRejected(t *testing.T) {
	token := timeout.New(context.Background(), 200*time.Millisecond)
	defer token.Cancel()

	s := newSupervisor("sleep", []string{"10"}, supervisor.Options{
		Timeout:       token,
		RejectOnError: supervisor.RejectErrors,
	})

	start := time.Now()
	_, err := s.Run(context.Background(), supervisor.RunOptions{})
	assert.ErrorIs(t, err, supervisor.ErrTimeoutExpired)
	assert.Less(t, time.Since(start), 2*time.Second)

	<-s.Done()
}

func TestSupervisor_Run_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	s := newSupervisor("sleep", []string{"10"}, supervisor.Options{})

	res, err := s.Run(ctx, supervisor.RunOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, supervisor.ErrTimeoutExpired)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, "SIGTERM", res.Signal)
}

func TestSupervisor_Run_TimeoutAfterExitIsIgnored(t *testing.T) {
	token := timeout.New(context.Background(), 100*time.Millisecond)
	defer token.Cancel()

	s := newSupervisor("echo", []string{"fast"}, supervisor.Options{Timeout: token})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	<-token.Done()

	assert.NoError(t, res.Err)
	cached, _ := s.Result()
	assert.NoError(t, cached.Err)
}

func TestSupervisor_Stop_BeforeRunIsNoop(t *testing.T) {
	s := newSupervisor("sleep", []string{"10"}, supervisor.Options{})

	assert.NoError(t, s.Stop(context.Background(), supervisor.StopOptions{}))
	assert.Equal(t, supervisor.StateNotStarted, s.State())
}

func TestSupervisor_Stop_TwiceFails(t *testing.T) {
	s := newSupervisor("sleep", []string{"10"}, supervisor.Options{})

	ch := runAsync(s, supervisor.RunOptions{})
	waitStarted(t, s)

	require.NoError(t, s.Stop(context.Background(), supervisor.StopOptions{}))

	res := <-ch
	require.NoError(t, res.err)
	assert.Equal(t, "SIGTERM", res.result.Signal)
	assert.True(t, s.Stopped())

	err := s.Stop(context.Background(), supervisor.StopOptions{})
	assert.ErrorIs(t, err, supervisor.ErrAlreadyStopped)
}

func TestSupervisor_Stop_ForceKillsStubbornProcess(t *testing.T) {
	var once sync.Once
	ready := make(chan struct{})

	s := newSupervisor("sh", []string{"-c", `trap "" TERM; echo ready; sleep 10`}, supervisor.Options{
		OnStdout: func(chunk string, _ supervisor.StreamContext) {
			if strings.Contains(chunk, "ready") {
				once.Do(func() { close(ready) })
			}
		},
	})

	ch := runAsync(s, supervisor.RunOptions{})

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not become ready")
	}

	start := time.Now()
	require.NoError(t, s.Stop(context.Background(), supervisor.StopOptions{Force: true}))

	res := <-ch
	elapsed := time.Since(start)

	require.NoError(t, res.err)
	assert.Equal(t, "SIGKILL", res.result.Signal)
	assert.GreaterOrEqual(t, elapsed, 2900*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
	assert.False(t, util.IsProcessAlive(s.Pid()))
}

func TestSupervisor_ReportError_FirstErrorWins(t *testing.T) {
	errFirst := errors.New("first")
	errSecond := errors.New("second")

	s := newSupervisor("sh", []string{"-c", "echo boom; exec sleep 10"}, supervisor.Options{
		OnStdout: func(chunk string, sc supervisor.StreamContext) {
			if strings.Contains(chunk, "boom") {
				sc.ReportError(errFirst)
				sc.ReportError(errSecond)
			}
		},
	})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, errFirst)
	assert.NotErrorIs(t, res.Err, errSecond)
	assert.Equal(t, "SIGTERM", res.Signal)
	assert.Equal(t, "boom", res.Stdout)
}

func TestSupervisor_StreamContext_Stop(t *testing.T) {
	s := newSupervisor("sh", []string{"-c", "echo stop-me; exec sleep 10"}, supervisor.Options{
		OnStdout: func(chunk string, sc supervisor.StreamContext) {
			assert.NoError(t, sc.Stop(supervisor.StopOptions{}))
		},
	})

	res, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.NoError(t, res.Err)
	assert.Equal(t, "SIGTERM", res.Signal)
}

func TestSupervisor_String(t *testing.T) {
	s := newSupervisor("echo", []string{"a", "b"}, supervisor.Options{})

	assert.Equal(t, "[-1] echo a b", s.String())

	_, err := s.Run(context.Background(), supervisor.RunOptions{})
	require.NoError(t, err)

	assert.NotContains(t, s.String(), "[-1]")
	assert.True(t, strings.HasSuffix(s.String(), "echo a b"))
}
