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

	"coinledger/internal/config"
	"coinledger/internal/handler"
	"coinledger/internal/infrastructure/cache"
	"coinledger/internal/infrastructure/database"
	"coinledger/internal/infrastructure/mq"
	"coinledger/internal/job"
	"coinledger/internal/ledger"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}

	producer, err := mq.NewProducer(&cfg.Kafka)
	if err != nil {
		log.Fatalf("kafka init failed: %v", err)
	}
	defer producer.Close()

	ldg, err := ledger.NewLedger(db, cfg)
	if err != nil {
		log.Fatalf("ledger init failed: %v", err)
	}

	ldg.OnLoadProgress(func(label string, percent int) {
		log.Printf("[Ledger] %s %d%%", label, percent)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ldg.Load(ctx); err != nil {
		log.Fatalf("journal load failed: %v", err)
	}
	if _, err := ldg.WorldAccount(ctx, cfg.Business.WorldID); err != nil {
		log.Fatalf("world account init failed: %v", err)
	}
	if cfg.Business.PurgeOnLoad {
		if _, err := ldg.Purge(ctx, ledger.RemoveOrphanedAccounts|ledger.RemoveZeroBalanceAccounts); err != nil {
			log.Printf("purge on load failed: %v", err)
		}
	}

	outboxSender := job.NewOutboxSender(db, producer, cfg)
	go outboxSender.Start(ctx)

	squashJob := job.NewSquashJob(ldg, cfg)
	go squashJob.Start(ctx)

	router := handler.SetupRouter(ldg, redisClient)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if err := ldg.Save(shutdownCtx); err != nil {
		log.Printf("journal save error: %v", err)
	}

	log.Println("server stopped")
}
