package app_test

import (
	"context"
	"testing"

	"github.com/lambda-feedback/procvisor/app"
	"github.com/lambda-feedback/procvisor/app/lambda"
	"github.com/lambda-feedback/procvisor/app/standalone"
	"github.com/lambda-feedback/procvisor/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func baseOptions() fx.Option {
	cfg := config.Config{
		Exec:           config.ExecConfig{Command: "echo"},
		MaxConcurrency: 1,
	}

	return fx.Options(
		fx.Supply(fx.Annotate(context.Background(), fx.As(new(context.Context)))),
		fx.Supply(zap.NewNop()),
		app.SharedModule(cfg),
	)
}

func TestStandaloneModule_Validate(t *testing.T) {
	err := fx.ValidateApp(baseOptions(), standalone.Module(standalone.Config{}))
	assert.NoError(t, err)
}

func TestLambdaModule_Validate(t *testing.T) {
	err := fx.ValidateApp(baseOptions(), lambda.Module(lambda.Config{
		ProxySource: lambda.ProxySourceApiGatewayV2,
	}))
	assert.NoError(t, err)
}
