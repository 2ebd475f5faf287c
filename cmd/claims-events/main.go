package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyzr/claims/cmd/claims-events/hub"
	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Events only need Redis
	components, err := bootstrap.Setup(ctx, "claims-events",
		bootstrap.WithoutDB(),
		bootstrap.WithoutLedger(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	log := components.Logger

	h := hub.New(log)
	go h.Run(ctx)

	subscriber := hub.NewSubscriber(components.Redis.GetUnderlying(), h, log)
	errChan := make(chan error, 1)
	go func() {
		errChan <- subscriber.Start(ctx)
		cancel()
	}()

	srv := hub.NewServer(h, components.Config.Events.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWebSocket)
	mux.HandleFunc("/stats", srv.HandleStats)
	mux.Handle("/health", server.HealthHandler(components.Health))

	httpServer := server.New("claims-events", components.Config.Service.Port, mux, 0, log)
	if err := httpServer.Start(ctx); err != nil {
		log.Error("server failed", "error", err)
	}
	cancel()

	if err := <-errChan; err != nil {
		log.Error("subscriber failed", "error", err)
		os.Exit(1)
	}
	log.Info("claims-events stopped")
}
