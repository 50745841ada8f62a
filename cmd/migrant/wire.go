//go:build wireinject
// +build wireinject

package main

import (
	"log/slog"

	"github.com/google/wire"

	"github.com/burugo/migrant"
)

// initializeApp wires the database commands' dependencies.
func initializeApp(cfg *migrant.Config, logger *slog.Logger) (*App, func(), error) {
	wire.Build(
		provideDBAdapter,
		provideIntrospector,
		provideMigrations,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
