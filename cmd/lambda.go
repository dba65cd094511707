package cmd

import (
	"github.com/lambda-feedback/procvisor/app"
	"github.com/lambda-feedback/procvisor/app/lambda"
	"github.com/lambda-feedback/procvisor/util/conf"
	"github.com/lambda-feedback/procvisor/util/logging"
	"github.com/urfave/cli/v2"
)

var (
	lambdaCmdDescription = `The lambda command starts procvisor as an AWS Lambda runtime
interface client, serving the http routes of the serve command
to events of the configured proxy source. Every invocation runs
the configured command once.

The command will start the AWS runtime interface client and
blocks indefinitely, processing incoming AWS Lambda events.`
	lambdaCmd = &cli.Command{
		Name:        "lambda",
		Usage:       "Run the AWS Lambda handler",
		Description: lambdaCmdDescription,
		Action:      lambdaAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "lambda-proxy-source",
				Usage:    "the source of the AWS Lambda event. Options: API_GW_V1, API_GW_V2, ALB.",
				Value:    "API_GW_V2",
				EnvVars:  []string{"LAMBDA_PROXY_SOURCE"},
				Category: "lambda",
			},
		},
	}
)

func lambdaAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	// flags only reach the config when set
	cfg, err := conf.Parse[lambda.Config](conf.ParseOptions{
		Defaults: conf.DefaultConfig{
			"lambda_proxy_source": ctx.String("lambda-proxy-source"),
		},
		Log: log,
		Cli: ctx,
	})
	if err != nil {
		return err
	}

	if cfg.ProxySource, err = lambda.ParseProxySource(cfg.ProxySource.String()); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	log.Info("starting AWS Lambda handler")

	return app.Run(ctx.Context, lambda.Module(cfg))
}

func init() {
	rootApp.Commands = append(rootApp.Commands, lambdaCmd)
}
