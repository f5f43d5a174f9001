package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mealmate/internal/app"
	"mealmate/internal/config"
	"mealmate/internal/telegram"
)

func main() {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	state := application.Start(ctx)
	log.Printf("Shared state loaded (%s)", state)

	bot, err := telegram.NewBot(cfg, application)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}

	bot.RegisterHandlers()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: nil,
	}

	go func() {
		log.Printf("Grocery Bot Server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	application.Shutdown(ctxShutdown)

	log.Println("Server exiting")
}
