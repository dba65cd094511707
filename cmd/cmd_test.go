//go:build !windows

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/lambda-feedback/procvisor/internal/execution/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseEnv(t *testing.T) {
	env, err := parseEnv([]string{"A=1", "B=x=y", "C="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "C": ""}, env)

	_, err = parseEnv([]string{"INVALID"})
	assert.Error(t, err)

	_, err = parseEnv([]string{"=value"})
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(supervisor.Result{ExitCode: 0}))
	assert.Equal(t, 3, exitCode(supervisor.Result{ExitCode: 3}))
	assert.Equal(t, 1, exitCode(supervisor.Result{ExitCode: -1, Signal: "SIGTERM"}))
	assert.Equal(t, 1, exitCode(supervisor.Result{ExitCode: 0, Err: errors.New("boom")}))
}

func TestForwardChunks_ReportsPatternMatches(t *testing.T) {
	var out bytes.Buffer
	var reported []error

	fn := forwardChunks(&out, regexp.MustCompile(`ERROR: \w+`))

	sc := supervisor.StreamContext{
		Log: zap.NewNop(),
		ReportError: func(err error) {
			reported = append(reported, err)
		},
	}

	fn("all good\n", sc)
	fn("ERROR: disk full\n", sc)

	assert.Equal(t, "all good\nERROR: disk full\n", out.String())
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], errPatternMatched)
	assert.Contains(t, reported[0].Error(), "ERROR: disk")
}

func TestDetectEnvironment(t *testing.T) {
	lookup := func(env map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		}
	}

	assert.Equal(t, environmentLambda, detectEnvironment(lookup(map[string]string{
		"AWS_LAMBDA_RUNTIME_API": "127.0.0.1:9001",
	})))
	assert.Equal(t, environmentStandalone, detectEnvironment(lookup(map[string]string{
		"AWS_LAMBDA_RUNTIME_API": "",
	})))
	assert.Equal(t, environmentStandalone, detectEnvironment(lookup(nil)))
}

func TestRun_ExecPropagatesExitCode(t *testing.T) {
	code := run(context.Background(), []string{
		"procvisor", "--log-level", "error", "exec", "--", "sh", "-c", "exit 3",
	})

	assert.Equal(t, 3, code)
}

func TestRun_ExecSuccess(t *testing.T) {
	code := run(context.Background(), []string{
		"procvisor", "--log-level", "error", "exec", "--json", "--", "true",
	})

	assert.Equal(t, 0, code)
}

func TestRun_ExecRejectsOnErrorPattern(t *testing.T) {
	code := run(context.Background(), []string{
		"procvisor", "--log-level", "error", "--reject-on-error",
		"exec", "--error-pattern", "boom", "--", "sh", "-c", "echo boom; exec sleep 10",
	})

	assert.Equal(t, 1, code)
}

func TestRun_ExecWithoutCommand(t *testing.T) {
	code := run(context.Background(), []string{
		"procvisor", "--log-level", "error", "exec",
	})

	assert.Equal(t, 2, code)
}

func TestRun_ExecEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FOO=file\nBAR=file\n"), 0o600))

	code := run(context.Background(), []string{
		"procvisor", "--log-level", "error", "--env-file", path, "--env", "BAR=flag",
		"exec", "--", "sh", "-c", `test "$FOO" = file && test "$BAR" = flag`,
	})

	assert.Equal(t, 0, code)
}
