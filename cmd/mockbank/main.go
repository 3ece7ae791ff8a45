package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tdtu-ibank/payflow/internal/config"
)

func main() {
	// 1. Load configuration
	cfg := config.LoadConfig()
	log.Println("✓ Configuration loaded")

	// 2. Initialize the in-memory bank with seeded tuition records
	b := newBank()
	handler := newBankHandler(b)

	// 3. Setup Gin router
	router := gin.Default()
	handler.RegisterRoutes(router)

	// 4. Start server with graceful shutdown
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Println("🚀 Mock bank gateway starting on", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("✓ Server exited")
}
