package app

import (
	"github.com/lambda-feedback/procvisor/config"
	"github.com/lambda-feedback/procvisor/internal/shell"
	"github.com/lambda-feedback/procvisor/runtime"
	"github.com/lambda-feedback/procvisor/util/conf"
	"github.com/lambda-feedback/procvisor/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

// New creates the shell shared by the serve and lambda commands.
func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	return shell.New(log, SharedModule(config)), nil
}

// SharedModule provides the config and the runtime.
func SharedModule(config config.Config) fx.Option {
	return fx.Module(
		"shared",
		// provide global config
		fx.Supply(config),
		// provide runtime and its handler
		runtime.Module(runtime.NewConfig(config)),
	)
}
