package handler

import "go.uber.org/fx"

// Module provides the http routes of the application.
func Module() fx.Option {
	return fx.Module("handler",
		fx.Provide(NewCommandHandler),
		fx.Provide(NewRunRoute),
		fx.Provide(NewHealthRoute),
	)
}
