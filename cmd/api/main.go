package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/marketplace-service/internal/auth"
	"github.com/marketplace-service/internal/config"
	"github.com/marketplace-service/internal/events"
	grpcserver "github.com/marketplace-service/internal/grpc"
	handler "github.com/marketplace-service/internal/http"
	"github.com/marketplace-service/internal/logger"
	"github.com/marketplace-service/internal/notifier"
	"github.com/marketplace-service/internal/payment"
	"github.com/marketplace-service/internal/ratelimit"
	"github.com/marketplace-service/internal/repo"
	"github.com/marketplace-service/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	zlog.Info("connected to database")

	if err := repo.RunMigrations(db, repo.Migrations, "migrations"); err != nil {
		zlog.Fatal("failed to apply migrations", zap.Error(err))
	}
	zlog.Info("migrations applied")

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}
	zlog.Info("connected to redis")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := repo.NewPostgresStore(db)
	publisher := events.NewRedisPublisher(redisClient)
	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TTL)

	sim := payment.NewSimulator(cfg.Payment.SuccessRate, nil)
	registry := payment.NewRegistry(
		payment.NewCreditCard(sim, time.Now),
		payment.NewPayPal(sim),
		payment.NewBankTransfer(sim),
	)
	if cfg.Braintree.Enabled() {
		registry.Register(payment.NewBraintree(cfg.Braintree))
	}
	zlog.Info("payment processors registered", zap.Strings("processors", registry.Names()))

	limiter := ratelimit.NewRedisLimiter(redisClient, "download", cfg.Download.RateLimit, cfg.Download.RateWindow)

	orderService := service.NewOrderService(store, publisher)
	cartService := service.NewCartService(store, publisher)
	downloadService := service.NewDownloadService(store, limiter, cfg.Download.TTL, cfg.Download.MaxDownloads)
	paymentService := service.NewPaymentService(store, registry, downloadService, publisher)
	accountService := service.NewAccountService(store.Repos().Users, tokens)

	var notify notifier.Notifier = notifier.NewLog(zlog)
	if cfg.SES.Enabled() {
		sesNotifier, err := notifier.NewSES(ctx, cfg.SES)
		if err != nil {
			zlog.Fatal("failed to configure SES", zap.Error(err))
		}
		notify = sesNotifier
	}

	consumer := events.NewConsumer(redisClient, store.Repos().Users, notify, zlog)
	go consumer.Subscribe(ctx, events.LifecycleChannels...)

	h := handler.NewHandler(orderService, cartService, paymentService, downloadService, accountService, tokens)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.Middleware(zlog), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		zlog.Info("starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("listen", zap.Error(err))
		}
	}()

	rpc := grpcserver.NewServer(orderService, paymentService, tokens, zlog)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(rpc.UnaryInterceptor()))
	rpc.Register(grpcSrv)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		zlog.Fatal("failed to listen for gRPC", zap.Error(err))
	}
	go func() {
		zlog.Info("starting gRPC server", zap.String("port", cfg.GRPCPort))
		if err := grpcSrv.Serve(lis); err != nil {
			zlog.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		zlog.Error("error closing redis connection", zap.Error(err))
	}

	zlog.Info("server exiting")
}
