package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/cluster"
	"github.com/playbookrun/controller/internal/config"
	"github.com/playbookrun/controller/internal/resume"
	"github.com/playbookrun/controller/internal/store"
)

func provideLogRegistry(cfg *config.ResumeTriggerConfig) (*logger.LogRegistry, error) {
	return logger.NewLogRegistry(logger.LogLevelConfig(cfg.LogLevels))
}

func provideLogFactory(reg *logger.LogRegistry) logger.LogFactory {
	return logger.MakeLogrusLogFactoryStdOut(reg)
}

func provideFirestoreClient(ctx context.Context, cfg *config.ResumeTriggerConfig) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
	if err != nil {
		return nil, fmt.Errorf("error creating firestore client: %w", err)
	}
	return client, nil
}

func provideK8sClient() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading in-cluster kubeconfig: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

func provideTrigger(s store.Store, adapter cluster.Adapter, cfg *config.ResumeTriggerConfig, logFactory logger.LogFactory) *resume.Trigger {
	return resume.NewTrigger(s, adapter, cfg.ImageRegistry, logFactory)
}

func provideServer(cfg *config.ResumeTriggerConfig, trigger *resume.Trigger, logFactory logger.LogFactory) *resume.Server {
	return resume.NewServer(cfg.AdminAddress, cfg.Namespace, trigger, logFactory)
}
