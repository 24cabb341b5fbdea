package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-relay/config"
	"github.com/marcelsud/webhook-relay/internal/bootstrap"
	"github.com/marcelsud/webhook-relay/internal/http/chi"
)

const TIMEOUT = 30 * time.Second

/*
 * main wires every package together; imports only flow downwards:
 * the application (api, worker, cli) imports the business layer, which imports storage
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	logger := httplog.NewLogger("webhook-relay", httplog.Options{
		JSON: true,
	})

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	workersDone := make(chan struct{})
	if cfg.WorkerEnabled {
		go func() {
			defer close(workersDone)
			if err := app.Workers().Run(ctx); err != nil {
				logger.Error().Err(err).Msg("worker pool stopped")
			}
		}()
	} else {
		close(workersDone)
	}

	go func() {
		if err := app.RelayNotifications(ctx); err != nil {
			logger.Error().Err(err).Msg("notification relay stopped")
		}
	}()

	r := chi.Handlers(ctx, app.Service, app.Hub, app.Metrics.Handler())
	srv := &http.Server{
		ReadTimeout: 30 * time.Second,
		Addr:        ":" + cfg.Port,
		Handler:     r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	<-workersDone
	if err != nil {
		fmt.Println(err)
		return
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	default:
		errShutdown <- fmt.Errorf("forcing closing the server: %w", err)
	}
}
