package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-relay/config"
	"github.com/marcelsud/webhook-relay/internal/bootstrap"
)

// Standalone worker for deployments that run the API with WORKER_ENABLED=false
func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if cfg.QueueBackend != config.BackendRedis {
		fmt.Println("the standalone worker needs QUEUE_BACKEND=redis")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	logger := httplog.NewLogger("webhook-relay-worker", httplog.Options{
		JSON: true,
	})

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	if err := app.Workers().Run(ctx); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("Worker stopped")
}
