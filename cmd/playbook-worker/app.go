package main

import (
	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/blob"
	"github.com/playbookrun/controller/internal/store"
	"github.com/playbookrun/controller/internal/worker"
)

// app bundles everything one worker container invocation needs to call worker.Execute.
type app struct {
	Env     worker.StartupEnv
	Scope   store.RunScope
	Blob    blob.Store
	Secrets store.SecretStore
	LogFac  logger.LogFactory
}
