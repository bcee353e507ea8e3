package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/blob"
	"github.com/playbookrun/controller/internal/config"
	"github.com/playbookrun/controller/internal/store"
	"github.com/playbookrun/controller/internal/worker"
)

func provideLogRegistry(cfg *config.WorkerConfig) (*logger.LogRegistry, error) {
	return logger.NewLogRegistry(logger.LogLevelConfig(cfg.LogLevels))
}

func provideLogFactory(reg *logger.LogRegistry) logger.LogFactory {
	return logger.MakeLogrusLogFactoryStdOut(reg)
}

func provideFirestoreClient(ctx context.Context, cfg *config.WorkerConfig) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
	if err != nil {
		return nil, fmt.Errorf("error creating firestore client: %w", err)
	}
	return client, nil
}

func provideRunScope(s store.Store, cfg *config.WorkerConfig) store.RunScope {
	return s.ForRun(cfg.OrgID, cfg.RunID)
}

func provideSecretStore(s store.Store, cfg *config.WorkerConfig) store.SecretStore {
	return s.Secrets(cfg.OrgID)
}

func provideBlobStore(ctx context.Context, cfg *config.WorkerConfig) (blob.Store, error) {
	return blob.Factory(ctx, cfg.BlobStore, blob.RunPathID(cfg.RunID.String()))
}

func provideStartupEnv(cfg *config.WorkerConfig) worker.StartupEnv {
	return worker.StartupEnv{
		RunID:          cfg.RunID,
		OrgID:          cfg.OrgID,
		StepID:         cfg.StepID,
		Namespace:      cfg.Namespace,
		ResumeThreadID: cfg.ResumeThreadID,
	}
}
