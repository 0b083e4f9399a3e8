package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/caretta-labs/trackserver"
	"github.com/caretta-labs/trackserver/factory"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	config := trackserver.DefaultConfig()
	config.BackendStoreURI = getEnv("BACKEND_STORE_URI", "")
	config.DefaultArtifactRoot = getEnv("DEFAULT_ARTIFACT_ROOT", "")

	ctx, cancel := context.WithTimeout(context.Background(), config.Database.ConnectTimeout)
	defer cancel()

	st, err := factory.NewStore(ctx, config, logger)
	if err != nil {
		sugar.Fatalf("failed to open store: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		shutdownCancel()
	}()

	server := NewServer(st, logger)
	server.RegisterRoutes()

	httpServer := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: server.Handler(),
	}

	go func() {
		<-shutdownCtx.Done()
		teardownCtx, teardownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer teardownCancel()
		st.Teardown(teardownCtx)
		httpServer.Shutdown(teardownCtx)
	}()

	sugar.Infow("starting server", "port", getEnv("PORT", "8080"))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalf("server error: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
