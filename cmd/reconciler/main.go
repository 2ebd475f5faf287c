package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyzr/claims/cmd/reconciler/worker"
	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/repository"
	"github.com/lyzr/claims/common/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Bootstrap service components; synchronize only reads the ledger
	components, err := bootstrap.Setup(ctx, "reconciler",
		bootstrap.WithReadOnlyLedger(),
		bootstrap.WithDBInitHook(bootstrap.Migrate(ctx)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	if components.Redis == nil {
		components.Logger.Error("reconciler requires Redis")
		os.Exit(1)
	}

	orchestrator, err := components.NewOrchestrator(
		repository.NewClaimRepository(components.DB),
		repository.NewUserRepository(components.DB),
	)
	if err != nil {
		components.Logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	cfg := components.Config.Reconciler
	reconciler := worker.NewReconciler(orchestrator, components.Logger)
	consumer := divergence.NewConsumer(components.Redis.GetUnderlying(), divergence.ConsumerConfig{
		Stream:          cfg.Stream,
		Group:           cfg.Group,
		Consumer:        cfg.Consumer,
		MaxAttempts:     cfg.MaxAttempts,
		BlockFor:        cfg.BlockFor,
		RetryBackoff:    cfg.RetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	}, reconciler.Handle, components.Logger)

	// Start consumer in goroutine; if it gives up, stop the health server too
	errChan := make(chan error, 1)
	go func() {
		errChan <- consumer.Start(ctx)
		cancel()
	}()

	// Health endpoint for orchestration probes
	mux := http.NewServeMux()
	mux.Handle("/health", server.HealthHandler(components.Health))
	health := server.New("reconciler health", components.Config.Service.Port, mux, 0, components.Logger)

	components.Logger.Info("reconciler started successfully", "stream", cfg.Stream, "group", cfg.Group)

	if err := health.Start(ctx); err != nil {
		components.Logger.Error("health server failed", "error", err)
	}
	cancel()

	if err := <-errChan; err != nil {
		components.Logger.Error("consumer failed", "error", err)
		os.Exit(1)
	}
	components.Logger.Info("reconciler stopped")
}
