package conf

import (
	"context"
	"errors"
)

var (
	ErrNoConfigInContext = errors.New("config not found in context")
	ErrInvalidConfig     = errors.New("invalid config in context")
)

type configKey struct{}

// ContextWithConfig returns a copy of ctx that carries config.
func ContextWithConfig[C any](ctx context.Context, config C) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfigFromContext returns the config stored in ctx. It fails
// if ctx carries no config, or a config of another type.
func GetConfigFromContext[C any](ctx context.Context) (C, error) {
	var config C

	value := ctx.Value(configKey{})
	if value == nil {
		return config, ErrNoConfigInContext
	}

	config, ok := value.(C)
	if !ok {
		return config, ErrInvalidConfig
	}

	return config, nil
}
