package spawn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// chunkSize is the maximum size of a single data event.
const chunkSize = 32 * 1024

// Handle is a running process. Events are delivered in order over
// the channel returned by Events, which is closed after EventClose.
// Consumers must drain the channel until it is closed.
type Handle interface {
	Pid() int
	Events() <-chan Event
	Kill(os.Signal) error
	Release()
}

type proc struct {
	pid    int
	events chan Event
	exited chan struct{}

	stdout *os.File
	stderr *os.File

	releaseOnce sync.Once

	log *zap.Logger
}

var _ Handle = (*proc)(nil)

// Spawn starts the command and returns a handle to the running
// process. The process is placed in its own process group, so
// signals reach its children too.
func Spawn(ctx context.Context, command Command, log *zap.Logger) (Handle, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// exit early if the context is already cancelled
	if ctx.Err() != nil {
		return nil, fmt.Errorf("failed to start process: %w", ctx.Err())
	}

	if command.Path == "" {
		return nil, ErrEmptyCommand
	}

	name, args := command.Path, command.Args
	if command.Shell {
		name, args = shellCommand(command.Path, command.Args)
	}

	cmd := exec.Command(name, args...)

	if command.Env != nil {
		cmd.Env = mergeEnv(os.Environ(), command.Env)
	}

	if command.Dir != "" {
		cmd.Dir = command.Dir
	}

	initCmd(cmd)

	// the pipes are created by hand, so that exec does not wait for
	// them to drain before reporting the exit of the process
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, err
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, err
	}

	// the child holds its own copies of the write ends
	closeAll(stdoutW, stderrW)

	p := &proc{
		pid:    cmd.Process.Pid,
		events: make(chan Event),
		exited: make(chan struct{}),
		stdout: stdoutR,
		stderr: stderrR,
		log:    log.Named("spawn").With(zap.Int("pid", cmd.Process.Pid)),
	}

	p.log.Debug("process started",
		zap.String("command", name),
		zap.Strings("args", args),
	)

	go p.run(cmd)

	return p, nil
}

func (p *proc) Pid() int {
	return p.pid
}

func (p *proc) Events() <-chan Event {
	return p.events
}

// Kill sends the signal to the process group of the process.
func (p *proc) Kill(signal os.Signal) error {
	select {
	case <-p.exited:
		return ErrProcessExited
	default:
	}

	p.log.Debug("sending signal", zap.Stringer("signal", signal))

	return signalProcess(p.pid, signal)
}

// Release closes the read ends of the output pipes. Pending reads
// end, and no further data events are emitted.
func (p *proc) Release() {
	p.releaseOnce.Do(func() {
		closeAll(p.stdout, p.stderr)
	})
}

func (p *proc) run(cmd *exec.Cmd) {
	var pumps errgroup.Group

	pumps.Go(func() error {
		return p.pump(Stdout, p.stdout)
	})

	pumps.Go(func() error {
		return p.pump(Stderr, p.stderr)
	})

	// block until the process exits
	status := statusFromError(cmd.Wait())
	close(p.exited)

	p.log.Debug("process exited", zap.Stringer("status", status))

	p.events <- EventExit{Status: status}

	// wait for the streams to be drained
	if err := pumps.Wait(); err != nil {
		p.log.Debug("stream pump failed", zap.Error(err))
	}

	p.Release()

	p.events <- EventClose{Status: status}

	close(p.events)
}

func (p *proc) pump(stream Stream, r io.Reader) error {
	buf := make([]byte, chunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.events <- EventData{Stream: stream, Chunk: chunk}
		}

		if err == nil {
			continue
		}

		// a released pipe ends the stream like an EOF
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return nil
		}

		p.events <- EventError{Stream: stream, Err: err}

		return fmt.Errorf("%s: %w", stream, err)
	}
}

// MARK: - Helpers

func statusFromError(err error) Status {
	var code int

	if err == nil {
		// the process exited successfully, set the exit code to 0
		return Status{Code: &code}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			// the process was terminated by a signal
			return Status{Signal: signalName(ws.Signal())}
		}

		if code = exitErr.ExitCode(); code >= 0 {
			return Status{Code: &code}
		}
	}

	// could not determine the exit status or signal,
	// set exit status to 1
	code = 1

	return Status{Code: &code}
}

func mergeEnv(base []string, env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	merged := append([]string{}, base...)
	for _, k := range keys {
		merged = append(merged, fmt.Sprintf("%s=%s", k, env[k]))
	}

	return merged
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
