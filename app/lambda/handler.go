package lambda

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/lambda-feedback/procvisor/internal/server"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// proxies adapt the routes to the events of a proxy source.
var proxies = map[ProxySource]func(http.Handler) any{
	ProxySourceApiGatewayV1: func(h http.Handler) any {
		return httpadapter.New(h).ProxyWithContext
	},
	ProxySourceApiGatewayV2: func(h http.Handler) any {
		return httpadapter.NewV2(h).ProxyWithContext
	},
	ProxySourceAlb: func(h http.Handler) any {
		return httpadapter.NewALB(h).ProxyWithContext
	},
}

type LambdaHandlerParams struct {
	fx.In

	Config Config

	// Handlers are the routes served to the invocations
	Handlers []*server.HttpHandler `group:"handlers"`

	Context context.Context

	Logger *zap.Logger
}

// LambdaHandler serves the routes of the application to the
// invocations of the lambda runtime api.
type LambdaHandler struct {
	source ProxySource
	ctx    context.Context
	cancel context.CancelFunc
	routes http.Handler
	log    *zap.Logger
}

func NewLambdaHandler(params LambdaHandlerParams) *LambdaHandler {
	ctx, cancel := context.WithCancel(params.Context)

	log := params.Logger.Named("handler")

	return &LambdaHandler{
		source: params.Config.ProxySource,
		ctx:    ctx,
		cancel: cancel,
		routes: server.NewMux(params.Handlers, log),
		log:    log,
	}
}

func NewLifecycleHandler(params LambdaHandlerParams, lc fx.Lifecycle) *LambdaHandler {
	handler := NewLambdaHandler(params)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return handler.Start()
		},
		OnStop: func(context.Context) error {
			handler.Shutdown()
			return nil
		},
	})
	return handler
}

// Start connects to the runtime api in the background. It fails
// if the proxy source is not supported.
func (s *LambdaHandler) Start() error {
	proxy, err := s.proxy()
	if err != nil {
		return err
	}

	s.log.Info("starting lambda runtime client", zap.Stringer("proxy_source", s.source))

	go lambda.StartWithOptions(proxy, lambda.WithContext(s.ctx))

	return nil
}

// Shutdown cancels the context of pending invocations.
func (s *LambdaHandler) Shutdown() {
	s.cancel()
}

func (s *LambdaHandler) proxy() (any, error) {
	newProxy, ok := proxies[s.source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxySource, s.source)
	}

	return newProxy(s.routes), nil
}
