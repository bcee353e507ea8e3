package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playbookrun/controller/internal/config"
)

func main() {
	cfg, err := config.LoadResumeTriggerConfig()
	if err != nil {
		log.Fatalf("error loading configuration: %s", err)
	}

	ctx := context.Background()
	a, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("error building resume trigger: %s", err)
	}
	defer cleanup()

	go a.Server.Start()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Server.Stop(shutdownCtx); err != nil {
		log.Fatal(err.Error())
	}
	log.Print("resume trigger shutdown complete")
}
