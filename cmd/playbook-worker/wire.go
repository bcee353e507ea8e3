//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/playbookrun/controller/internal/config"
	"github.com/playbookrun/controller/internal/store"
)

func newApp(ctx context.Context, cfg *config.WorkerConfig) (*app, func(), error) {
	panic(wire.Build(
		wire.Struct(new(app), "*"),

		provideLogRegistry,
		provideLogFactory,

		provideFirestoreClient,
		store.NewFirestoreStore,
		wire.Bind(new(store.Store), new(*store.FirestoreStore)),
		provideRunScope,
		provideSecretStore,

		provideBlobStore,

		provideStartupEnv,
	))
}
