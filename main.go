package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/auth"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/config"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/policy"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/room"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/store"
	v1 "github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/transport/http/v1"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting collaboration server...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}
	authorizer := policy.NewAuthorizer(db, policyEngine)

	// Initialize rooms and the idle sweeper
	registry := room.NewRegistry(db, authorizer)
	go func() {
		ticker := time.NewTicker(cfg.RoomSweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			registry.Sweep(cfg.RoomIdleTTL)
		}
	}()

	// Initialize WebSocket server
	resolver := auth.NewResolver(cfg.JWTSecret)
	wsServer := ws.NewServer(cfg, registry, resolver)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register routes
	e.GET("/ws/diagrama/:diagrama_id", wsServer.HandleWebSocket)
	e.GET("/ws/diagrama/:diagrama_id/", wsServer.HandleWebSocket)
	v1.NewHandler(db, registry).RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Collaboration server started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down collaboration server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Collaboration server stopped")
}
