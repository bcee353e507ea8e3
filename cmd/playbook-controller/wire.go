//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/playbookrun/controller/internal/cluster"
	"github.com/playbookrun/controller/internal/config"
	"github.com/playbookrun/controller/internal/controller"
	"github.com/playbookrun/controller/internal/models"
	"github.com/playbookrun/controller/internal/store"
)

func newApp(ctx context.Context, cfg *config.ControllerConfig, playbook *models.Playbook) (*app, func(), error) {
	panic(wire.Build(
		wire.Struct(new(app), "*"),

		provideLogRegistry,
		provideLogFactory,
		provideClock,
		provideRegistry,
		controller.NewMetrics,

		provideFirestoreClient,
		store.NewFirestoreStore,
		wire.Bind(new(store.Store), new(*store.FirestoreStore)),
		provideRunScope,

		provideK8sClient,
		cluster.NewK8sAdapter,
		wire.Bind(new(cluster.Adapter), new(*cluster.K8sAdapter)),

		provideControllerConfig,
		controller.New,
		wire.Bind(new(controller.HealthChecker), new(*controller.Controller)),

		provideAdminServer,
	))
}
