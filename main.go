package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dacrab/clubos-legacy-sub000/internal/config"
	delivery "github.com/dacrab/clubos-legacy-sub000/internal/delivery/http"
	"github.com/dacrab/clubos-legacy-sub000/internal/lock"
	redislock "github.com/dacrab/clubos-legacy-sub000/internal/lock/redis"
	"github.com/dacrab/clubos-legacy-sub000/internal/messaging"
	"github.com/dacrab/clubos-legacy-sub000/internal/messaging/kafka"
	"github.com/dacrab/clubos-legacy-sub000/internal/messaging/watermill"
	"github.com/dacrab/clubos-legacy-sub000/internal/service"
	"github.com/dacrab/clubos-legacy-sub000/internal/stock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Storage ---
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	if cfg.SeedProducts {
		if err := seedProducts(ctx, store); err != nil {
			slog.Error("Failed to seed products", "err", err)
			os.Exit(1)
		}
	}

	// --- Messaging ---
	var publisher messaging.Publisher = messaging.Nop{}
	var broker *kafka.Broker
	switch cfg.MessagingDriver {
	case config.MessagingKafka:
		broker = kafka.NewKafkaBroker(cfg.KafkaBrokers)
		defer broker.Close()
		publisher = broker
	case config.MessagingWatermill:
		wm, err := watermill.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
		if err != nil {
			slog.Error("Failed to create watermill publisher", "err", err)
			os.Exit(1)
		}
		defer wm.Close()
		publisher = wm
	}

	if cfg.AuditConsumer {
		if broker == nil {
			broker = kafka.NewKafkaBroker(cfg.KafkaBrokers)
			defer broker.Close()
		}
		go broker.Consume(ctx, cfg.KafkaTopic, cfg.AuditGroupID, auditLogHandler(logger.With("component", "audit")))
		slog.Info("🔄 Audit consumer started", "topic", cfg.KafkaTopic)
	}

	// --- Session locks ---
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to redis", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		locker = redislock.NewLocker(client, cfg.LockTTL)
		slog.Info("Using redis session locks", "addr", cfg.RedisAddr)
	}

	registerSvc := service.NewRegisterService(store, stock.NewLedger(), locker, publisher, service.Options{
		Topic:      cfg.KafkaTopic,
		MaxRetries: cfg.MaxRetries,
	})

	// --- HTTP API ---
	mux := http.NewServeMux()
	delivery.NewHandler(registerSvc).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           delivery.EnableCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("🚀 HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	// --- gRPC health ---
	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			slog.Error("Failed to listen for gRPC", "addr", cfg.GRPCAddr, "err", err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

		go func() {
			slog.Info("gRPC health server starting", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				slog.Error("gRPC server error", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}
