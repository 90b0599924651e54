package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/venuekit/tapledger/internal/adapter/handler"
	"github.com/venuekit/tapledger/internal/adapter/storage"
	"github.com/venuekit/tapledger/internal/adapter/stream"
	"github.com/venuekit/tapledger/internal/core/domain"
	"github.com/venuekit/tapledger/internal/core/service"
)

const tapTimeout = 5 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Initialize adapters and engine
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisStream := stream.NewRedisStream(rdb, cfg.IngestChannel, cfg.LiveChannel, cfg.QueueSize)
	tapService := service.NewTapService(mysqlAdapter, redisStream, service.DefaultRules())

	// Start ingest workers draining the tap subscription
	taps := redisStream.Subscribe(ctx)
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, taps, tapService)
		}(i)
	}
	log.Printf("started %d ingest workers on %s", cfg.WorkerCount, cfg.IngestChannel)

	// Initialize HTTP server
	mux := http.NewServeMux()
	handler.NewHTTPHandler(tapService).Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	// Stop the subscription and wait for workers to drain
	cancel()
	wg.Wait()
	log.Println("workers stopped")

	rdb.Close()
	db.Close()
	log.Println("connections closed")
}

func workerLoop(id int, taps <-chan domain.RawTap, svc *service.TapService) {
	for raw := range taps {
		ctx, cancel := context.WithTimeout(context.Background(), tapTimeout)

		result, err := svc.ProcessTap(ctx, raw)
		if err != nil {
			log.Printf("worker %d: tap failed: %v", id, err)
		} else {
			log.Printf("worker %d: tap %s @ %s -> %s", id, result.Event.CardID, result.Event.PortalID, result.Status)
		}

		cancel()
	}
}
