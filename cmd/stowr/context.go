package main

import (
	"context"
	"errors"

	"github.com/stowr/stowr"
)

// configKey is the context key the loaded configuration is stored under.
type configKey struct{}

func withConfig(ctx context.Context, cfg *stowr.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFromContext(ctx context.Context) (*stowr.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*stowr.Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// openEngine loads the config from cmd's context and opens an Engine on
// it; every subcommand's RunE except config's and migrate's starts here.
func openEngine(ctx context.Context) (*stowr.Engine, error) {
	cfg, err := configFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return stowr.Open(*cfg)
}
