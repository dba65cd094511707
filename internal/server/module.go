package server

import "go.uber.org/fx"

// Module serves the routes of the "handlers" group over http
// for the lifetime of the application.
func Module(config HttpConfig) fx.Option {
	return fx.Module("server",
		fx.Supply(config),
		fx.Provide(NewLifecycleServer),
		// the server is not a dependency of anything, force its creation
		fx.Invoke(func(*HttpServer) {}),
	)
}
