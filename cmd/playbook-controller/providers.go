package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/config"
	"github.com/playbookrun/controller/internal/controller"
	"github.com/playbookrun/controller/internal/store"
)

func provideLogRegistry(cfg *config.ControllerConfig) (*logger.LogRegistry, error) {
	return logger.NewLogRegistry(logger.LogLevelConfig(cfg.LogLevels))
}

func provideLogFactory(reg *logger.LogRegistry) logger.LogFactory {
	return logger.MakeLogrusLogFactoryStdOut(reg)
}

func provideClock() clock.Clock {
	return clock.New()
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideFirestoreClient(ctx context.Context, cfg *config.ControllerConfig) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
	if err != nil {
		return nil, fmt.Errorf("error creating firestore client: %w", err)
	}
	return client, nil
}

func provideRunScope(s store.Store, cfg *config.ControllerConfig) store.RunScope {
	return s.ForRun(cfg.OrgID, cfg.RunID)
}

func provideK8sClient() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading in-cluster kubeconfig: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

func provideControllerConfig(cfg *config.ControllerConfig) controller.Config {
	return controller.Config{
		OrgID:             cfg.OrgID,
		RunID:             cfg.RunID,
		Namespace:         cfg.Namespace,
		ImageRegistry:     cfg.ImageRegistry,
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}
}

func provideAdminServer(cfg *config.ControllerConfig, reg *prometheus.Registry, checker controller.HealthChecker, logFactory logger.LogFactory) *controller.AdminServer {
	return controller.NewAdminServer(cfg.AdminAddress, reg, checker, logFactory)
}
