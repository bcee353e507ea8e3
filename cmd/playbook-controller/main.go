package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playbookrun/controller/internal/config"
	"github.com/playbookrun/controller/internal/models"
)

// loadPlaybook reads the resolved playbook document this controller invocation was launched
// for. Parsing a playbook's Markdown-plus-YAML-frontmatter source into this shape is an
// external collaborator's job; the controller only ever consumes the result as JSON.
func loadPlaybook(path string) (*models.Playbook, error) {
	if path == "" {
		return nil, fmt.Errorf("error PLAYBOOK_PATH is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading playbook file %s: %w", path, err)
	}
	var p models.Playbook
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("error parsing playbook file %s: %w", path, err)
	}
	return &p, nil
}

func main() {
	fmt.Println("playbook-controller starting")

	cfg, err := config.LoadControllerConfig()
	if err != nil {
		log.Fatalf("error loading configuration: %s", err)
	}

	playbook, err := loadPlaybook(os.Getenv("PLAYBOOK_PATH"))
	if err != nil {
		log.Fatalf("error loading playbook: %s", err)
	}

	ctx := context.Background()
	a, cleanup, err := newApp(ctx, cfg, playbook)
	if err != nil {
		log.Fatalf("error building controller: %s", err)
	}
	defer cleanup()

	go a.Admin.Start()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.Controller.Run(ctx, playbook.Steps)
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case <-done:
		log.Print("received shutdown signal; waiting for the run to finalize")
		runErr = <-runErrCh
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Admin.Stop(shutdownCtx); err != nil {
		log.Printf("error shutting down admin server: %s", err)
	}

	if runErr != nil {
		log.Fatalf("run controller exited with error: %s", runErr)
	}
	log.Print("playbook-controller shutdown complete")
}
