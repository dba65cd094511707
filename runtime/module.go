package runtime

import (
	"github.com/lambda-feedback/procvisor/runtime/schema"
	"go.uber.org/fx"
)

// Module provides the process runtime, started and shut down with
// the application, and the handler serving run requests.
func Module(config Config) fx.Option {
	return fx.Module(
		"runtime",
		fx.Supply(config),
		fx.Provide(
			NewLifecycleRuntime,
			schema.NewRunSchema,
			NewRuntimeHandler,
		),
	)
}
