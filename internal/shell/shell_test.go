package shell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lambda-feedback/procvisor/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func TestShell_Run_PropagatesExitCode(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(), fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return sd.Shutdown(fx.ExitCode(3))
			},
		})
	}))

	var exitErr *shell.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
}

func TestShell_Run_StartFailure(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(), fx.Invoke(func(lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return errors.New("start failed")
			},
		})
	}))

	assert.Equal(t, 1, shell.ExitCode(err))
}

func TestShell_Run_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	stopped := false
	s := shell.New(zap.NewNop(), fx.Invoke(func(lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				cancel()
				return nil
			},
			OnStop: func(context.Context) error {
				stopped = true
				return nil
			},
		})
	}))

	err := s.Run(ctx)

	assert.Equal(t, 0, shell.ExitCode(err))
	assert.True(t, stopped)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, shell.ExitCode(nil))
	assert.Equal(t, 4, shell.ExitCode(shell.NewExitError(4)))
	assert.Equal(t, 1, shell.ExitCode(errors.New("other")))
}
