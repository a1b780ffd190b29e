package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/community-hub/community-hub/internal/api/http"
	"github.com/community-hub/community-hub/internal/application/lifecycle"
	"github.com/community-hub/community-hub/internal/application/participation"
	"github.com/community-hub/community-hub/internal/config"
	"github.com/community-hub/community-hub/internal/domain/resource"
	"github.com/community-hub/community-hub/internal/infrastructure/identity"
	"github.com/community-hub/community-hub/internal/infrastructure/mongodb"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	client, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.StoreTimeout)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	db := client.Database(cfg.MongoDB)

	// stores
	challengeStore := mongodb.NewResourceStore(db, resource.ChallengeSpec)
	eventStore := mongodb.NewResourceStore(db, resource.EventSpec)
	if err := challengeStore.EnsureIndexes(ctx); err != nil {
		log.Fatalf("index error: %v", err)
	}
	if err := eventStore.EnsureIndexes(ctx); err != nil {
		log.Fatalf("index error: %v", err)
	}

	// services
	challenges := httpapi.KindAPI{
		Lifecycle:     lifecycle.NewService(challengeStore, resource.ChallengeSpec, logger),
		Participation: participation.NewService(challengeStore, resource.ChallengeSpec, logger),
	}
	events := httpapi.KindAPI{
		Lifecycle:     lifecycle.NewService(eventStore, resource.EventSpec, logger),
		Participation: participation.NewService(eventStore, resource.EventSpec, logger),
	}

	// API server
	apiServer := httpapi.NewServer(challenges, events, identity.Passthrough{}, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
