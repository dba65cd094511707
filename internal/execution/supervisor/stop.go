package supervisor

import (
	"context"
	"time"

	"github.com/lambda-feedback/procvisor/internal/execution/spawn"
	"go.uber.org/zap"
)

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Stop sends the stop signal to the process. In force mode, the
// process is killed if it does not terminate within the kill
// deadline, and Stop blocks until it terminated or was killed.
//
// Stop is a no-op if the process was never started, and fails
// with ErrAlreadyStopped once the process has terminated.
func (s *Supervisor) Stop(ctx context.Context, opts StopOptions) error {
	done, err := s.stop(opts)
	if err != nil {
		s.log.Error("failed to stop process", zap.String("process", s.String()), zap.Error(err))
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop sends the signal and, in force mode, starts the escalation
// in the background. The returned channel is closed once the
// escalation is over.
func (s *Supervisor) stop(opts StopOptions) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// nothing to stop
	if s.handle == nil {
		return closedChan, nil
	}

	if s.stoppedLocked() {
		return nil, ErrAlreadyStopped
	}

	if s.state == StateRunning {
		s.state = StateTerminating
	}

	signal := opts.Signal
	if signal == nil {
		signal = spawn.TerminateSignal
	}

	log := s.runLog.With(zap.Stringer("signal", signal), zap.Bool("force", opts.Force))
	log.Info("stopping process")

	// the process may exit before its exit is processed
	if err := s.handle.Kill(signal); err != nil {
		log.Warn("failed to send signal", zap.Error(err))
	}

	if !opts.Force {
		return closedChan, nil
	}

	escalated := make(chan struct{})
	go s.escalate(s.handle, s.cfg.killDeadline, log, escalated)

	return escalated, nil
}

// escalate kills the process unless it terminates within deadline.
func (s *Supervisor) escalate(
	handle spawn.Handle,
	deadline time.Duration,
	log *zap.Logger,
	escalated chan<- struct{},
) {
	defer close(escalated)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-s.done:
		return
	case <-timer.C:
	}

	log.Warn("process did not terminate in time, killing", zap.Duration("deadline", deadline))

	// best effort, the run does not fail if the kill fails
	if err := handle.Kill(spawn.KillSignal); err != nil {
		log.Warn("failed to kill process", zap.Error(err))
	}
}
