package cmd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lambda-feedback/procvisor/config"
	"github.com/lambda-feedback/procvisor/internal/shell"
	"github.com/lambda-feedback/procvisor/util/conf"
	"github.com/lambda-feedback/procvisor/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const envPrefix = "PROCVISOR_"

var (
	appName  = "procvisor"
	appUsage = `A supervisor for external processes. Runs a command, captures
its output, enforces timeouts and reports a single result.`
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Args:            true,
		Flags: append([]cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.PathFlag{
				Name:    "config",
				Usage:   "path to a json config file.",
				EnvVars: []string{envPrefix + "CONFIG"},
			},
			// http flags
			&cli.StringFlag{
				Name:     "api-key",
				Usage:    "the api key http requests must present in the api-key header.",
				Category: "http",
			},
			&cli.IntFlag{
				Name:     "max-concurrency",
				Usage:    "the maximum number of runs in flight.",
				Category: "http",
			},
		}, execFlags()...),
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			cfg, err := parseConfig(ctx, log)
			if err != nil {
				return err
			}

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return err
			}

			_ = log.Sync()

			return nil
		},
		// exit codes are handled by Execute
		ExitErrHandler: func(*cli.Context, error) {},
	}
)

// cliConfigKeys maps cli flags to their config keys.
var cliConfigKeys = map[string]string{
	"command":             "exec.command",
	"arg":                 "exec.args",
	"cwd":                 "exec.cwd",
	"env-file":            "exec.env_file",
	"shell":               "exec.shell",
	"timeout":             "exec.timeout",
	"collect":             "exec.collect",
	"wait-close":          "exec.wait_close",
	"force-stop-on-error": "exec.force_stop_on_error",
	"reject-on-error":     "exec.reject_on_error",
	"reject-on-exit":      "exec.reject_on_exit",
	"kill-deadline":       "exec.kill_deadline",
	"api-key":             "auth.key",
}

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

// Execute runs the cli and returns the exit code of the process.
func Execute(params ExecuteParams) int {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	return run(context.Background(), os.Args)
}

func run(ctx context.Context, args []string) int {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return 0
	}

	// exit codes of the shell and of supervised processes
	var shellErr *shell.ExitError
	if errors.As(err, &shellErr) {
		return shellErr.ExitCode
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		return exitCoder.ExitCode()
	}

	sentry.CaptureException(err)

	fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())

	// otherwise, exit with exit code 1
	return 1
}

// parseConfig loads the config from defaults, the config file,
// PROCVISOR_ prefixed env vars and the cli flags set on ctx
// or any of its parents.
func parseConfig(ctx *cli.Context, log *zap.Logger) (config.Config, error) {
	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Cli:       ctx,
		CliMap:    cliConfigKeys,
		Defaults:  config.DefaultConfig,
		EnvPrefix: envPrefix,
		FileName:  ctx.Path("config"),
		Log:       log,
	})
	if err != nil {
		return cfg, err
	}

	flagEnv, err := parseEnv(ctx.StringSlice("env"))
	if err != nil {
		return cfg, err
	}

	// env file < config < flags
	env := make(map[string]string)

	if cfg.Exec.EnvFile != "" {
		fileEnv, err := conf.LoadEnvFile(cfg.Exec.EnvFile)
		if err != nil {
			log.Error("error loading env file", zap.String("file", cfg.Exec.EnvFile), zap.Error(err))
			return cfg, err
		}
		maps.Copy(env, fileEnv)
	}

	maps.Copy(env, cfg.Exec.Env)
	maps.Copy(env, flagEnv)

	if len(env) > 0 {
		cfg.Exec.Env = env
	}

	return cfg, nil
}

// parseEnv parses KEY=VALUE pairs.
func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid env var %q, expected KEY=VALUE", pair)
		}

		env[key] = value
	}

	return env, nil
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	level := getLogLevelFromCLI(ctx)
	format := getLogFormatFromCLI(ctx)

	var config zap.Config
	if format == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.InitialFields = map[string]any{
		"app": appName,
	}

	config.Level = level

	return config.Build()
}

func getLogFormatFromCLI(ctx *cli.Context) string {
	format := ctx.String("log-format")
	if format != "" {
		return format
	}

	return "production"
}

func getLogLevelFromCLI(ctx *cli.Context) zap.AtomicLevel {
	lvl := ctx.String("log-level")

	if atom, err := zap.ParseAtomicLevel(lvl); err == nil {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
