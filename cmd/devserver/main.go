package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-dashboard-client/internal/config"
	"ai-dashboard-client/internal/devserver"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/server"
	"ai-dashboard-client/internal/tracer"
)

func main() {
	// 0. Tracing (OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer("ai-dashboard-devserver")
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger("logs/devserver.log", cfg.App.Environment == "production")
	defer sysLogger.Sync()

	// 2. Gateway
	hub := devserver.NewHub(sysLogger)
	gateway := devserver.NewGateway(hub, cfg.Dev.JWTSecret, 60*time.Millisecond, sysLogger)

	// 3. Server
	srv := server.New(cfg.Dev, gateway)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	if err := srv.Run(); err != nil {
		log.Fatal(err)
	}
}
