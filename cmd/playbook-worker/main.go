package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/playbookrun/controller/internal/config"
	"github.com/playbookrun/controller/internal/worker"
)

// defaultRun is the stand-in step content every image built from this binary runs until a
// concrete agent implementation replaces it. It demonstrates the library's shape: it logs
// its instruction, stages a result artifact, and completes — a real step would call out to
// whatever mail/chat/ticketing/LLM provider its playbook step actually needs instead.
func defaultRun(ctx context.Context, sess *worker.Session) (string, error) {
	instruction := os.Getenv("STEP_INSTRUCTION")
	sess.Log().WithField("instruction", instruction).Info("executing step")

	if sess.Secrets() != nil {
		if cfg, err := sess.Secrets().ReadAIConfig(ctx); err == nil {
			sess.Log().WithField("provider", cfg.Provider).Info("ai config available")
		}
	}

	summary := fmt.Sprintf("step %s completed", sess.StepID())
	if _, err := sess.SaveArtifact("result.txt", bytes.NewBufferString(summary+"\n")); err != nil {
		return "", err
	}
	return summary, nil
}

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("error loading configuration: %s", err)
	}

	ctx := context.Background()
	a, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("error building worker: %s", err)
	}
	defer cleanup()

	workerLog := a.LogFac("playbook-worker")
	outcome := worker.Execute(ctx, a.Env, a.Scope, a.Blob, a.Secrets, workerLog, defaultRun)

	switch {
	case outcome.Failed:
		workerLog.WithField("error", outcome.Err).Error("step failed")
		os.Exit(1)
	case outcome.Paused:
		workerLog.Info("step paused, exiting cleanly for resume")
		os.Exit(0)
	default:
		workerLog.WithField("summary", outcome.ResultSummary).Info("step completed")
		os.Exit(0)
	}
}
