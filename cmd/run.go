package cmd

import (
	"os"

	"github.com/lambda-feedback/procvisor/util/logging"
	"github.com/urfave/cli/v2"
)

var (
	runCmdDescription = `The run command detects the execution environment from the
environment variables and starts serving runs accordingly.

If the AWS_LAMBDA_RUNTIME_API environment variable is set,
procvisor will start the AWS Lambda runtime handler, matching
the behaviour of the lambda command.

Otherwise, procvisor will start the standalone http server,
matching the behaviour of the serve command.`
	runCmd = &cli.Command{
		Name:        "run",
		Usage:       "Detect execution environment and start serving runs.",
		Description: runCmdDescription,
		Action:      runAction,
		Flags:       []cli.Flag{},
	}
)

func runAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	switch env := detectEnvironment(os.LookupEnv); env {
	case environmentLambda:
		log.Info("detected AWS Lambda environment")
		return lambdaAction(ctx)
	default:
		log.Info("detected standalone environment")
		return serveAction(ctx)
	}
}

type environment string

const (
	environmentLambda     environment = "lambda"
	environmentStandalone environment = "standalone"
)

func detectEnvironment(lookup func(string) (string, bool)) environment {
	if api, ok := lookup("AWS_LAMBDA_RUNTIME_API"); ok && api != "" {
		return environmentLambda
	}

	return environmentStandalone
}

func init() {
	runCmd.Flags = append(runCmd.Flags, serveCmd.Flags...)
	runCmd.Flags = append(runCmd.Flags, lambdaCmd.Flags...)

	rootApp.Commands = append(rootApp.Commands, runCmd)
}
