package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"braidly/internal/gateway"
	"braidly/internal/infra/broker/kafka"
	"braidly/internal/infra/config"
	"braidly/internal/infra/db/mongo"
	ginserver "braidly/internal/infra/http/gin"
	"braidly/internal/infra/obs"
	"braidly/internal/infra/security"
	redisstore "braidly/internal/infra/storage/redis"
	"braidly/internal/infra/storage/s3"
	"braidly/internal/infra/storage/scylla"
	"braidly/internal/presence"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger := obs.NewLogger("dev")
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	verifier, err := security.NewTokenVerifier(cfg.TokenSecret)
	if err != nil {
		logger.Error("token verifier init failed", "error", err)
		os.Exit(1)
	}

	mongoClient, err := mongo.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("mongo init failed", "error", err)
		os.Exit(1)
	}
	conversations := mongo.NewConversationRepository(mongoClient.DB)

	session, err := scylla.NewSession(cfg, logger)
	if err != nil {
		logger.Error("scylla init failed", "error", err)
		os.Exit(1)
	}
	defer session.Close()
	messages := scylla.NewStore(session, logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	tracker := presence.NewTracker(redisstore.NewPresenceStore(rdb), cfg.PresenceOfflineAfter, logger)
	go tracker.RunSweeper(ctx, cfg.PresenceSweepInterval)

	var producer *kafka.Producer
	var bookingPublisher gateway.BookingPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaBookingTopic, nil)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		bookingPublisher = producer
	} else {
		logger.Warn("kafka brokers not configured, booking status forwarding disabled")
	}

	pipeline := gateway.NewPipeline(conversations, messages, bookingPublisher, logger)
	hub := gateway.NewHub(pipeline, tracker, logger)

	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil,
			kafka.NewBookingRelay(hub, logger))
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, []string{cfg.KafkaBookingTopic}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	var uploader s3.Uploader
	uploader, err = s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
	if err != nil {
		logger.Warn("s3 unavailable, attachment uploads disabled", "error", err)
		uploader = s3.NoopUploader{}
	}

	handlers := ginserver.Handlers{
		Chat: ginserver.ChatHandler{
			Conversations: conversations,
			Messages:      messages,
			Pipeline:      pipeline,
			Hub:           hub,
			Uploader:      uploader,
			Logger:        logger,
		},
		Presence:       ginserver.PresenceHandler{Tracker: tracker, Logger: logger},
		WS:             ginserver.NewWSHandler(hub, verifier, logger).Handle,
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Checks: map[string]func() error{
			"mongo": func() error {
				pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return mongoClient.Ping(pingCtx)
			},
			"redis": func() error {
				pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return rdb.Ping(pingCtx).Err()
			},
		},
	}, handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("gateway starting", "addr", cfg.HTTPAddr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}
