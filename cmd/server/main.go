package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-tracker/internal/config"
	"github.com/iliyamo/seat-tracker/internal/database"
	"github.com/iliyamo/seat-tracker/internal/handler"
	"github.com/iliyamo/seat-tracker/internal/middleware"
	"github.com/iliyamo/seat-tracker/internal/mqtt"
	"github.com/iliyamo/seat-tracker/internal/queue"
	"github.com/iliyamo/seat-tracker/internal/repository"
	"github.com/iliyamo/seat-tracker/internal/router"
	"github.com/iliyamo/seat-tracker/internal/seat"
	"github.com/iliyamo/seat-tracker/internal/service"
	"github.com/iliyamo/seat-tracker/internal/store"
)

func main() {
	cfg := config.Load() // Load environment config
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persister, closeStore := openPersister(ctx, cfg)
	defer closeStore()
	st, err := store.Open(ctx, persister, cfg.SeatIDs)
	if err != nil {
		log.Fatalf("open seat store: %v", err)
	}

	users, err := repository.NewUserRepo(cfg.SeatUsers, cfg.AdminUsers, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("hash user passwords: %v", err)
	}

	var events service.EventSink
	if cfg.EventsEnabled {
		pub := queue.NewAsyncPublisher(queue.NewPublisher(cfg.RabbitURL), 256, 5*time.Second)
		defer pub.Close()
		events = pub
		log.Printf("seat events -> rabbitmq queue %s", queue.SeatQueueName)
	}
	if cfg.ConsumerEnabled {
		go func() {
			if err := queue.NewConsumer(cfg.RabbitURL, cfg.LogDir).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("seat-consumer stopped: %v", err)
			}
		}()
	}

	grace := cfg.BreakGrace
	if grace == 0 {
		grace = -1 // explicit zero: no grace
	}
	svc := service.New(st, users, service.Options{
		Machine: seat.Machine{
			Policy:      cfg.LoginPolicy,
			MaxBreak:    time.Duration(cfg.MaxBreakMin) * time.Minute,
			SensorBreak: time.Duration(cfg.SensorBreakMin) * time.Minute,
		},
		Grace:        grace,
		StoreRetries: cfg.StoreRetries,
		ExpiryRetry:  cfg.ExpiryRetry,
		Events:       events,
	})
	defer svc.Close()

	// Redis is optional: without it the limiters let everything through.
	var rdb *redis.Client
	rlCfg := config.LoadRateLimitConfig()
	if rlCfg.Enabled {
		if rdb, err = config.NewRedisClient(ctx); err != nil {
			log.Printf("rate limiting disabled: %v", err)
		} else {
			defer rdb.Close()
		}
	}
	limiter := middleware.NewTokenBucket(rlCfg, rdb)

	health := &handler.HealthHandler{SeatCount: func() int { return len(st.IDs()) }}
	if cfg.MQTTBroker != "" {
		h, err := mqtt.NewHandler(cfg.MQTTTopic, svc, limiter)
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		sub, err := mqtt.NewSubscriber(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, h)
		if err != nil {
			log.Printf("mqtt disabled: %v", err)
		} else {
			defer sub.Close()
			health.MQTT = sub
		}
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	seats := handler.NewSeatHandler(cfg, svc, users)
	router.RegisterRoutes(e, health, cfg.StaticDir)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users), cfg.JWTSecret)
	router.RegisterAdmin(e, seats, cfg.JWTSecret)
	router.RegisterSeats(e, seats, handler.NewSensorHandler(svc, limiter), limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, store=%s, seats=%v, policy=%s)", addr, cfg.Env, cfg.StoreDriver, cfg.SeatIDs, cfg.LoginPolicy)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

// openPersister picks the seat store backend named by STORE_DRIVER.
func openPersister(ctx context.Context, cfg config.Config) (store.Persister, func()) {
	if cfg.StoreDriver != "mysql" {
		log.Printf("seat data file: %s", cfg.DataPath)
		return repository.NewFileSeatRepo(cfg.DataPath), func() {}
	}
	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open mysql: %v", err)
	}
	repo := repository.NewMySQLSeatRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("create seat_states: %v", err)
	}
	return repo, func() { _ = db.Close() }
}
