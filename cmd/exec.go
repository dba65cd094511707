package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/getsentry/sentry-go"
	"github.com/lambda-feedback/procvisor/config"
	"github.com/lambda-feedback/procvisor/internal/execution/supervisor"
	"github.com/lambda-feedback/procvisor/internal/execution/timeout"
	"github.com/lambda-feedback/procvisor/util/conf"
	"github.com/lambda-feedback/procvisor/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var errPatternMatched = errors.New("error pattern matched")

var (
	execCmdDescription = `The exec command runs a single command under supervision and
exits with its exit code. The command is taken from the arguments
after --, or from the configured command if none are given.

Output of the command is forwarded as it arrives. If an error
pattern is given, output matching it is reported as an error,
which stops the command. SIGINT and SIGTERM received by procvisor
stop the command, killing it if it does not terminate in time.

The exec flags of the root command configure the run, e.g.

	procvisor --timeout 10s exec --json -- make test`
	execCmd = &cli.Command{
		Name:        "exec",
		Usage:       "Run a single command under supervision.",
		ArgsUsage:   "[--] <command> [args...]",
		Description: execCmdDescription,
		Action:      execAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "error-pattern",
				Usage: "report output matching the regular expression as an error.",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the result as json to stdout instead of forwarding stdout.",
			},
		},
	}
)

func execAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	command, args := cfg.Exec.Command, cfg.Exec.Args
	if ctx.Args().Present() {
		command, args = ctx.Args().First(), ctx.Args().Tail()
	}

	if command == "" {
		return cli.Exit("no command given", 2)
	}

	var pattern *regexp.Regexp
	if expr := ctx.String("error-pattern"); expr != "" {
		if pattern, err = regexp.Compile(expr); err != nil {
			return cli.Exit(fmt.Sprintf("invalid error pattern: %s", err), 2)
		}
	}

	jsonOutput := ctx.Bool("json")

	opts := cfg.Exec.Options()

	stdout := io.Writer(os.Stdout)
	if jsonOutput {
		stdout = io.Discard
	}

	opts.OnStdout = forwardChunks(stdout, pattern)
	opts.OnStderr = forwardChunks(os.Stderr, pattern)

	if cfg.Exec.Timeout > 0 {
		token := timeout.New(ctx.Context, cfg.Exec.Timeout)
		defer token.Cancel()

		opts.Timeout = token
	}

	sup := supervisor.New(command, args, opts, supervisor.Params{
		Log: log,
	})

	// stop the command on interrupt
	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go stopOnSignal(sigCtx, sup, log)

	res, runErr := sup.Run(ctx.Context, supervisor.RunOptions{})
	if errors.Is(runErr, supervisor.ErrTimeoutCompleted) {
		return cli.Exit(runErr.Error(), 1)
	}

	if runErr != nil {
		// a rejection may precede the result
		<-sup.Done()
		res, _ = sup.Result()
	}

	if jsonOutput {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			return err
		}
	}

	if runErr != nil {
		sentry.CaptureException(runErr)
		return cli.Exit(fmt.Sprintf("run rejected: %s", runErr), exitCode(res))
	}

	if res.Err != nil {
		log.Warn("run completed with error", zap.Error(res.Err))
	}

	if code := exitCode(res); code != 0 {
		return cli.Exit("", code)
	}

	return nil
}

// forwardChunks writes chunks to w and reports chunks matching
// pattern as errors.
func forwardChunks(w io.Writer, pattern *regexp.Regexp) supervisor.StreamFunc {
	return func(chunk string, sc supervisor.StreamContext) {
		if _, err := io.WriteString(w, chunk); err != nil {
			sc.Log.Debug("failed to forward output", zap.Error(err))
		}

		if pattern == nil {
			return
		}

		if match := pattern.FindString(chunk); match != "" {
			sc.ReportError(fmt.Errorf("%w: %q", errPatternMatched, match))
		}
	}
}

func stopOnSignal(ctx context.Context, sup *supervisor.Supervisor, log *zap.Logger) {
	select {
	case <-sup.Done():
		return
	case <-ctx.Done():
	}

	log.Info("received signal, stopping process")

	err := sup.Stop(context.Background(), supervisor.StopOptions{Force: true})
	if err != nil && !errors.Is(err, supervisor.ErrAlreadyStopped) {
		log.Warn("failed to stop process", zap.Error(err))
	}
}

// exitCode maps the result to the exit code of procvisor.
func exitCode(res supervisor.Result) int {
	switch {
	case res.ExitCode > 0:
		return res.ExitCode
	case res.ExitCode == 0 && res.Err == nil:
		return 0
	default:
		return 1
	}
}

func init() {
	rootApp.Commands = append(rootApp.Commands, execCmd)
}
