// Package supervisor runs a single external process and turns its
// lifecycle into one well-defined Result.
//
// A Supervisor is bound to a command and its arguments at construction.
// It spawns the process at most once. Output chunks, stream errors,
// the exit of the process, the close of its streams and the expiry of
// an attached timeout are processed in order by a single event loop.
// Every failure is funnelled through one error path, which records
// the first error, stops the process and applies the reject policy.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lambda-feedback/procvisor/internal/execution/spawn"
	"go.uber.org/zap"
)

// SpawnFunc starts a process. It is spawn.Spawn by default.
type SpawnFunc func(context.Context, spawn.Command, *zap.Logger) (spawn.Handle, error)

type Params struct {
	// Log is the logger to use for the supervisor
	Log *zap.Logger

	// Spawn starts the process. Defaults to spawn.Spawn.
	Spawn SpawnFunc
}

type settlement struct {
	result Result
	err    error
}

type Supervisor struct {
	command string
	args    []string
	base    Options

	spawn SpawnFunc
	log   *zap.Logger

	mu        sync.Mutex
	started   bool
	handle    spawn.Handle
	state     State
	argv      []string
	exitCode  int
	err       error
	result    *Result
	cfg       runConfig
	runLog    *zap.Logger
	collector *collector

	isSettled bool
	settled   chan settlement

	// done is closed once the result is produced
	done chan struct{}
}

// New creates a supervisor for the command. The arguments are
// fixed for the lifetime of the supervisor.
func New(command string, args []string, opts Options, params Params) *Supervisor {
	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}

	spawnFn := params.Spawn
	if spawnFn == nil {
		spawnFn = spawn.Spawn
	}

	return &Supervisor{
		command:  command,
		args:     append([]string(nil), args...),
		base:     opts,
		spawn:    spawnFn,
		log:      log.Named("supervisor"),
		state:    StateNotStarted,
		exitCode: -1,
		settled:  make(chan settlement, 1),
		done:     make(chan struct{}),
	}
}

// Run spawns the process and blocks until the run settles. A non-nil
// error means the run was rejected: the supervisor was already
// started, the attached timeout had already completed, or a reject
// policy fired. The result, once produced, is available via Result
// even if the run was rejected before.
//
// Cancelling ctx has the same effect as the expiry of a timeout.
func (s *Supervisor) Run(ctx context.Context, opts RunOptions) (Result, error) {
	cfg := s.base.Merge(opts.Options).resolve()

	// fail fast, a completed timeout would never fire
	if cfg.timeout != nil && cfg.timeout.Completed() {
		s.log.Error("timeout already completed", zap.String("process", s.String()))
		return Result{}, ErrTimeoutCompleted
	}

	runLog := s.log
	if !cfg.logging {
		runLog = zap.NewNop()
	}

	argv := append(append([]string(nil), s.args...), opts.ExtraArgs...)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.log.Error("process already started", zap.String("process", s.String()))
		return Result{}, ErrAlreadyStarted
	}

	s.started = true
	s.argv = argv
	s.cfg = cfg
	s.runLog = runLog.With(zap.String("command", s.command))
	s.collector = newCollector(cfg.collect)
	s.mu.Unlock()

	s.runLog.Info("starting process", zap.Strings("args", argv))

	handle, err := s.spawn(ctx, spawn.Command{
		Path:  s.command,
		Args:  argv,
		Dir:   cfg.dir,
		Env:   cfg.env,
		Shell: cfg.shell,
	}, runLog)
	if err != nil {
		s.handleError(fmt.Errorf("%w: %w", ErrSpawnFailed, err), false)
		s.finish(spawn.Status{})
		return s.wait()
	}

	s.mu.Lock()
	s.handle = handle
	s.state = StateRunning
	s.runLog = s.runLog.With(zap.Int("pid", handle.Pid()))
	s.mu.Unlock()

	go s.loop(ctx, handle)

	return s.wait()
}

func (s *Supervisor) wait() (Result, error) {
	settled := <-s.settled
	return settled.result, settled.err
}

// loop processes the events of the process and the expiry of the
// timeout sequentially, until the event channel is closed.
func (s *Supervisor) loop(ctx context.Context, handle spawn.Handle) {
	defer handle.Release()

	var expired <-chan struct{}
	if s.cfg.timeout != nil {
		expired = s.cfg.timeout.Done()
	}

	cancelled := ctx.Done()
	events := handle.Events()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.dispatch(handle, evt)

		case <-expired:
			expired = nil
			s.expire(s.cfg.timeout.Err())

		case <-cancelled:
			cancelled = nil
			s.expire(context.Cause(ctx))
		}
	}
}

func (s *Supervisor) dispatch(handle spawn.Handle, evt spawn.Event) {
	switch e := evt.(type) {
	case spawn.EventData:
		s.onData(e.Stream, string(e.Chunk))

	case spawn.EventError:
		s.handleError(fmt.Errorf("%w: %s: %w", ErrStream, e.Stream, e.Err), false)

	case spawn.EventExit:
		s.onExit(e.Status)

		if !s.cfg.waitForClose {
			// nobody listens to the streams anymore
			handle.Release()
		}

	case spawn.EventClose:
		s.onClose(e.Status)
	}
}

func (s *Supervisor) onData(stream spawn.Stream, chunk string) {
	// listeners are detached once the result is produced
	if s.hasResult() {
		return
	}

	s.collector.append(stream, chunk)

	if fn := s.cfg.callback(stream); fn != nil {
		fn(chunk, s.streamContext())
	}
}

func (s *Supervisor) onExit(status spawn.Status) {
	s.mu.Lock()
	s.exitCode = status.ExitCode()
	s.mu.Unlock()

	s.runLog.Info("process exited", zap.Stringer("status", status))

	if !s.cfg.waitForClose {
		s.produce(status)
	}

	if s.cfg.rejectOnExit != nil {
		if err := s.cfg.rejectOnExit(status); err != nil {
			s.runLog.Debug("rejecting run on exit", zap.Error(err))
			s.settle(err)
		}
	}

	if !s.cfg.waitForClose {
		s.settle(nil)
	}
}

func (s *Supervisor) onClose(status spawn.Status) {
	s.mu.Lock()
	if s.exitCode == -1 {
		s.exitCode = status.ExitCode()
	}
	s.mu.Unlock()

	s.runLog.Debug("process streams closed", zap.Stringer("status", status))

	if s.cfg.waitForClose {
		s.finish(status)
	}
}

// expire routes the completion of the timeout, or the cancellation
// of the run context, through the error path. It always forces.
func (s *Supervisor) expire(cause error) {
	if s.hasResult() {
		return
	}

	err := ErrTimeoutExpired
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrTimeoutExpired, cause)
	}

	s.handleError(err, true)
}

// handleError is the single entry point for failures. It keeps the
// first error for the result, stops the process and applies the
// reject policy.
func (s *Supervisor) handleError(err error, force bool) {
	s.mu.Lock()
	if s.result != nil {
		s.mu.Unlock()
		s.runLog.Warn("discarding error after termination", zap.Error(err))
		return
	}

	first := s.err == nil
	if first {
		s.err = err
	}

	hasHandle := s.handle != nil
	force = force || s.cfg.forceStopOnError
	policy := s.cfg.rejectOnError
	s.mu.Unlock()

	if first {
		s.runLog.Error("process error", zap.Error(err))
	} else {
		s.runLog.Warn("discarding subsequent error", zap.Error(err))
	}

	if hasHandle {
		if _, stopErr := s.stop(StopOptions{Force: force}); stopErr != nil && !errors.Is(stopErr, ErrAlreadyStopped) {
			s.runLog.Warn("failed to stop process", zap.Error(stopErr))
		}
	}

	if policy != nil {
		if rejection := policy(err); rejection != nil {
			s.settle(rejection)
		}
	}
}

// finish produces the result and settles the run.
func (s *Supervisor) finish(status spawn.Status) {
	s.produce(status)
	s.settle(nil)
}

// produce caches the result. Only the first call has an effect.
func (s *Supervisor) produce(status spawn.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result != nil {
		return
	}

	stdout, stderr := s.collector.strings()

	result := Result{
		ExitCode: status.ExitCode(),
		Signal:   status.Signal,
		Stdout:   stdout,
		Stderr:   stderr,
		Err:      s.err,
	}

	switch {
	case s.handle == nil:
		result.Outcome = OutcomeNeverStarted
	case status.Signal != "":
		result.Outcome = OutcomeSignaled
	default:
		result.Outcome = OutcomeExited
	}

	s.result = &result
	s.state = StateTerminated

	close(s.done)
}

// settle resolves the pending Run call. Only the first call has
// an effect.
func (s *Supervisor) settle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isSettled {
		return
	}

	s.isSettled = true

	var result Result
	if s.result != nil {
		result = *s.result
	}

	s.settled <- settlement{result: result, err: err}
}

func (s *Supervisor) streamContext() StreamContext {
	return StreamContext{
		Timeout: s.cfg.timeout,
		Log:     s.runLog,
		Stop: func(opts StopOptions) error {
			_, err := s.stop(opts)
			return err
		},
		ReportError: func(err error) {
			s.handleError(err, false)
		},
	}
}

// Result returns the result of the run, and false if no
// result has been produced yet.
func (s *Supervisor) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return Result{}, false
	}

	return *s.result, true
}

// Done returns a channel that is closed once the result is produced.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Pid returns the pid of the process, or -1 if it was not started.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return -1
	}

	return s.handle.Pid()
}

// ExitCode returns the last known exit code, or -1.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exitCode
}

// Stopped reports whether the process was started and a result
// has been produced.
func (s *Supervisor) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stoppedLocked()
}

func (s *Supervisor) stoppedLocked() bool {
	return s.handle != nil && s.result != nil
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Supervisor) hasResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.result != nil
}

// String describes the process for diagnostics.
func (s *Supervisor) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	pid := -1
	if s.handle != nil {
		pid = s.handle.Pid()
	}

	args := s.argv
	if args == nil {
		args = s.args
	}

	return strings.TrimSpace(fmt.Sprintf("[%d] %s %s", pid, s.command, strings.Join(args, " ")))
}
