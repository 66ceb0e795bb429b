package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/omitech/livetalk/internal/config"
	"github.com/omitech/livetalk/internal/handler"
	"github.com/omitech/livetalk/internal/hub"
	"github.com/omitech/livetalk/internal/metrics"
	"github.com/omitech/livetalk/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log.Println("Starting livetalk relay")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create metrics collector
	collector := metrics.NewPrometheusCollector()

	// Create router and hub
	callRouter := relay.NewRouter(collector, relay.WithRingTimeout(cfg.Call.RingTimeout))
	h := hub.New(callRouter, collector)
	callRouter.Bind(h)
	go h.Run()

	// Create handlers
	wsHandler := handler.NewWebSocketHandler(cfg, h)
	httpHandler := handler.NewHTTPHandler(callRouter, collector)

	// Create HTTP router
	router := mux.NewRouter()
	router.Handle(cfg.WebSocket.Path, wsHandler)
	httpHandler.SetupRoutes(router)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.HTTP.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Close hub
	h.Close()

	log.Println("Shutdown complete")
}
