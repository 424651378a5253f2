package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storysync/internal/api"
	"storysync/internal/config"
	"storysync/internal/discovery"
	"storysync/internal/relay"
	"storysync/internal/telemetry"
)

/*
RELAY SERVER

Startup: config, tracing, optional Redis bus, hub, routes, listener, optional
mDNS advertisement.
Shutdown on SIGINT/SIGTERM: stop accepting HTTP, close every peer through the
hub, then flush traces.
*/

func main() {
	log.Println("🚀 Starting storysync relay...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	traceShutdown, err := telemetry.Init("storysync-relay", cfg.JaegerEndpoint, cfg.TracingEnabled)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		traceShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	hubConfig := relay.DefaultConfig()
	hubConfig.SendBuffer = cfg.RelaySendBuffer
	hubConfig.PingInterval = cfg.RelayPingInterval
	hubConfig.ReadTimeout = cfg.RelayReadTimeout
	hubConfig.IdleTimeout = cfg.RelayIdleTimeout

	hub := relay.NewHub(hubConfig)

	if cfg.RelayRedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		bus, err := relay.NewRedisBus(ctx, cfg.RelayRedisAddr)
		cancel()
		if err != nil {
			log.Fatalf("❌ Failed to connect relay bus: %v", err)
		}
		hub.SetBus(bus)
		log.Printf("✓ Relay bus connected: redis %s", cfg.RelayRedisAddr)
	}

	hub.Start()

	handler := api.NewHandler(hub, relay.NewHandler(hub))
	router := api.SetupRoutes(handler)

	// no Read/WriteTimeout: they would cut long-lived websocket connections
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Relay listening on http://%s", cfg.Addr())
		log.Printf("   GET /ws/story/{sessionId}     - join a session (websocket)")
		log.Printf("   GET /api/sessions/{sessionId} - peers of a session")
		log.Printf("   GET /api/health               - health check")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	if cfg.RelayMDNS {
		stopAdvertising, err := discovery.Advertise(cfg.Port())
		if err != nil {
			log.Printf("⚠️  Failed to advertise relay: %v", err)
		} else {
			defer stopAdvertising()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down relay...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	hub.Shutdown()

	log.Println("✓ Relay shutdown complete")
}
