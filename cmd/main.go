package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/api"
	"fleetwatch/internal/baseline"
	"fleetwatch/internal/classifier"
	"fleetwatch/internal/config"
	"fleetwatch/internal/db"
	"fleetwatch/internal/events"
	"fleetwatch/internal/kafka"
	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
	"fleetwatch/internal/notification"
	"fleetwatch/internal/pipeline"
	"fleetwatch/internal/providers"
	"fleetwatch/internal/queue"
	"fleetwatch/internal/ws"
	"fleetwatch/pkg/email"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		if err := logger.Close(); err != nil {
			log.Printf("Logger close failed: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to Redis; the relay and the task queue cannot run without it
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Errorf("Failed to connect to Redis: %v", err)
		log.Fatalf("Redis connection failed: %v", err)
	}

	// Connect to database
	dbConn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	// Event bus with cross-instance relay
	local := events.NewBus(logger)
	defer local.Close()
	bus := events.NewDistributedBus(local, rdb, cfg.InstanceID, logger)
	if err := bus.Start(ctx); err != nil {
		log.Fatalf("Event relay failed: %v", err)
	}
	defer bus.Stop()

	// WebSocket fan-out
	sockets := ws.NewDistributedManager(ws.NewManager(logger), rdb, logger)
	if err := sockets.Start(ctx); err != nil {
		log.Fatalf("WebSocket relay failed: %v", err)
	}
	defer sockets.Stop()
	defer sockets.Local().CloseAll()

	// Detection and alerting
	tracker := baseline.NewTracker(dbConn, logger)
	detector := baseline.NewDetector(tracker, cfg.Detection.AnomalyCooldown, logger)
	engine := alerting.NewEngine(dbConn, logger)
	pipe := pipeline.New(bus, classifier.New(), detector, engine, dbConn, logger)

	// Notification channels
	mail := email.NewClient(cfg.Email.SMTPServer, cfg.Email.SMTPPort, cfg.Email.Username, cfg.Email.Password, cfg.Email.FromName)
	limiter := providers.NewTelegramLimiter(cfg.RateLimit.TelegramRateLimiter)

	var reloader *notification.Reloader
	if cfg.Channels.File != "" {
		src := notification.FileSource{Path: cfg.Channels.File}
		reloader = notification.NewReloader(src, src, engine, sockets, mail, limiter, logger)
	} else {
		reloader = notification.NewReloader(dbConn, dbConn, engine, sockets, mail, limiter, logger)
	}
	if err := reloader.Reload(ctx); err != nil {
		logger.Errorf("Initial channel load failed, using WebSocket only: %v", err)
	}

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() { reloader.Run(ctx, cfg.Channels.ReloadInterval) })
	if cfg.Channels.File != "" {
		goRun(func() {
			err := config.WatchChannelFile(ctx, cfg.Channels.File, logger, func(*config.ChannelFile) {
				if err := reloader.Reload(ctx); err != nil {
					logger.Errorf("Failed to reload channels: %v", err)
				}
			})
			if err != nil {
				logger.Errorf("Channel file watcher stopped: %v", err)
			}
		})
	}
	goRun(func() { pipeline.RunBaselines(ctx, tracker, dbConn, cfg.Detection.BaselineInterval, logger) })

	// Task queue workers
	tasks := queue.New(rdb, cfg.Tasks.StatusTTL, logger)
	pool := queue.NewPool(tasks, notifyTask(sockets), cfg.Tasks.Workers, logger)
	pool.Start(ctx)

	// Kafka ingest
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, pipe, logger)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
		goRun(func() { consumer.Run(ctx) })
	} else {
		logger.Warn("KAFKA_BROKER not set, telemetry ingest disabled")
	}

	// Start API server
	router := api.NewRouter(api.Deps{
		Events:   bus,
		Alerts:   engine,
		History:  dbConn,
		Reloader: reloader,
		Tasks:    tasks,
		Sockets:  sockets,
	}, logger, cfg.API.BasePath)
	srv := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	pool.Stop()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	wg.Wait()
	logger.Info("Service stopped")
}

// notifyTask hands each task to the submitting tenant's connected clients.
// Agent execution happens in the browser-side session that owns the
// conversation.
func notifyTask(b providers.Broadcaster) queue.Handler {
	return func(ctx context.Context, task models.TaskPayload) error {
		msg, err := json.Marshal(struct {
			Type string             `json:"type"`
			Task models.TaskPayload `json:"task"`
		}{Type: "task", Task: task})
		if err != nil {
			return err
		}
		return b.Broadcast(ctx, msg, task.TenantID)
	}
}
