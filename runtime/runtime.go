package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lambda-feedback/procvisor/config"
	"github.com/lambda-feedback/procvisor/internal/execution/supervisor"
	"github.com/lambda-feedback/procvisor/internal/execution/timeout"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNoCommand    = errors.New("no command configured")
	ErrNoRunSlot    = errors.New("no run slot available")
	ErrRunRejected  = errors.New("run rejected")
	ErrShuttingDown = errors.New("runtime is shutting down")
)

// Runtime is the interface for a runtime.
type Runtime interface {
	Run(context.Context, RunRequest) (RunResponse, error)

	Start(context.Context) error

	Shutdown(context.Context) error
}

// Config is the config of the process runtime.
type Config struct {
	// Command is the command every run executes
	Command string

	// Args are the arguments every run starts with
	Args []string

	// Options are the supervisor defaults of every run
	Options supervisor.Options

	// Timeout is the default timeout of a run
	Timeout time.Duration

	// MaxConcurrency is the maximum number of runs in flight
	MaxConcurrency int
}

// NewConfig derives the runtime config from the app config.
func NewConfig(cfg config.Config) Config {
	return Config{
		Command:        cfg.Exec.Command,
		Args:           cfg.Exec.Args,
		Options:        cfg.Exec.Options(),
		Timeout:        cfg.Exec.Timeout,
		MaxConcurrency: cfg.MaxConcurrency,
	}
}

// ProcessRuntime runs every request in a fresh supervised process.
type ProcessRuntime struct {
	config Config

	// slots bounds the number of runs in flight
	slots    *semaphore.Weighted
	maxSlots int64

	mu     sync.Mutex
	active map[string]*supervisor.Supervisor
	closed bool

	log *zap.Logger
}

var _ Runtime = (*ProcessRuntime)(nil)

// RuntimeParams defines the dependencies for the runtime.
type RuntimeParams struct {
	fx.In

	// Config is the config for the runtime
	Config Config

	// Log is the logger to use for the runtime
	Log *zap.Logger
}

// NewRuntime creates a new runtime.
func NewRuntime(params RuntimeParams) (*ProcessRuntime, error) {
	if params.Config.Command == "" {
		return nil, ErrNoCommand
	}

	maxSlots := int64(params.Config.MaxConcurrency)
	if maxSlots <= 0 {
		maxSlots = 1
	}

	return &ProcessRuntime{
		config:   params.Config,
		slots:    semaphore.NewWeighted(maxSlots),
		maxSlots: maxSlots,
		active:   make(map[string]*supervisor.Supervisor),
		log:      params.Log.Named("runtime"),
	}, nil
}

func NewLifecycleRuntime(params RuntimeParams, lc fx.Lifecycle) (Runtime, error) {
	r, err := NewRuntime(params)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return r.Shutdown(ctx)
		},
	})

	return r, nil
}

func (r *ProcessRuntime) Start(context.Context) error {
	r.log.Info("runtime started",
		zap.String("command", r.config.Command),
		zap.Strings("args", r.config.Args),
		zap.Int64("max_concurrency", r.maxSlots),
	)

	return nil
}

// Run executes the configured command once. It blocks until a run
// slot is free, or fails with ErrNoRunSlot once ctx is done.
func (r *ProcessRuntime) Run(ctx context.Context, req RunRequest) (RunResponse, error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return RunResponse{}, fmt.Errorf("%w: %w", ErrNoRunSlot, err)
	}
	defer r.slots.Release(1)

	runID := uuid.NewString()
	log := r.log.With(zap.String("run_id", runID))

	opts := req.options()

	if d := r.timeoutFor(req); d > 0 {
		token := timeout.New(context.Background(), d)
		defer token.Cancel()

		opts.Timeout = token
	}

	sup := supervisor.New(r.config.Command, r.config.Args, r.config.Options, supervisor.Params{
		Log: log,
	})

	if err := r.register(runID, sup); err != nil {
		return RunResponse{}, err
	}
	defer r.unregister(runID)

	start := time.Now()

	res, err := sup.Run(ctx, supervisor.RunOptions{
		Options:   opts,
		ExtraArgs: req.Args,
	})
	if errors.Is(err, supervisor.ErrAlreadyStarted) || errors.Is(err, supervisor.ErrTimeoutCompleted) {
		return RunResponse{}, err
	}

	if err != nil {
		// a rejection may precede the result
		select {
		case <-sup.Done():
			res, _ = sup.Result()
		case <-ctx.Done():
		}

		resp := newRunResponse(runID, sup.Pid(), time.Since(start), res)
		resp.Rejection = err.Error()

		log.Debug("run rejected", zap.Error(err))

		return resp, fmt.Errorf("%w: %w", ErrRunRejected, err)
	}

	log.Debug("run completed",
		zap.Int("exit_code", res.ExitCode),
		zap.String("outcome", string(res.Outcome)),
	)

	return newRunResponse(runID, sup.Pid(), time.Since(start), res), nil
}

// Shutdown rejects new runs, force-stops the runs in flight and
// waits for them to complete.
func (r *ProcessRuntime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	active := make([]*supervisor.Supervisor, 0, len(r.active))
	for _, sup := range r.active {
		active = append(active, sup)
	}
	r.mu.Unlock()

	r.log.Info("shutting down runtime", zap.Int("active", len(active)))

	g, gctx := errgroup.WithContext(ctx)
	for _, sup := range active {
		g.Go(func() error {
			err := sup.Stop(gctx, supervisor.StopOptions{Force: true})
			if errors.Is(err, supervisor.ErrAlreadyStopped) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// wait for all runs to release their slot
	if err := r.slots.Acquire(ctx, r.maxSlots); err != nil {
		return err
	}

	r.slots.Release(r.maxSlots)

	return nil
}

// Active returns the number of runs whose process is running.
func (r *ProcessRuntime) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, sup := range r.active {
		if sup.Pid() != -1 && !sup.Stopped() {
			active++
		}
	}

	return active
}

func (r *ProcessRuntime) timeoutFor(req RunRequest) time.Duration {
	if req.TimeoutMs != nil {
		return time.Duration(*req.TimeoutMs) * time.Millisecond
	}

	return r.config.Timeout
}

func (r *ProcessRuntime) register(runID string, sup *supervisor.Supervisor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrShuttingDown
	}

	r.active[runID] = sup

	return nil
}

func (r *ProcessRuntime) unregister(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, runID)
}
