package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"meetupAPI/handlers"
	"meetupAPI/internal/config"
	"meetupAPI/internal/logger"
	"meetupAPI/internal/rooms"
	"meetupAPI/internal/store"
	"meetupAPI/internal/workers"
	"meetupAPI/middleware"
	"meetupAPI/services"

	_ "net/http/pprof"
)

var (
	cfg             config.Config
	dbPool          *pgxpool.Pool
	redisClient     *redis.Client
	memoryPositions *store.MemoryPositionStore
	locationService *services.LocationService
	dispatcher      *services.BroadcastDispatcher
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		logger.Fatal("%v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.SetColor(!cfg.LogNoColor)

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to parse database URL: %v", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("Failed to create connection pool: %v", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database: %v", err)
	}

	logger.Info("Successfully connected to Postgres")

	var (
		positions store.PositionStore
		progress  store.RankedSet
		arrivals  store.RankedSet
	)

	switch cfg.StoreBackend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to parse REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to ping redis: %v", err)
		}
		positions = store.NewRedisPositionStore(redisClient)
		progress = store.NewRedisRankedSet(redisClient, services.ProgressSetName, store.Descending)
		arrivals = store.NewRedisRankedSet(redisClient, services.ArrivalSetName, store.Ascending)
		logger.Info("Using redis position store at %s", opts.Addr)

	default:
		memoryPositions = store.NewMemoryPositionStore()
		positions = memoryPositions
		progress = store.NewMemoryRankedSet(store.Descending)
		arrivals = store.NewMemoryRankedSet(store.Ascending)
		logger.Info("Using in-process position store")
	}

	ranker := services.NewLeaderboardRanker(progress, arrivals)
	detector := services.NewArrivalDetector(ranker, cfg.ArrivalRadiusMeters)
	directory := rooms.NewCachedDirectory(rooms.NewPostgresDirectory(dbPool))

	locationService = services.NewLocationService(positions, ranker, detector, directory, cfg.LivenessTTL)

	dispatcher = services.NewBroadcastDispatcher(
		services.WithSubscriberBuffer(cfg.SubscriberBuffer),
		services.WithSnapshotTimeout(cfg.SnapshotTimeout),
	)
	dispatcher.SetSnapshotLoader(locationService.LiveSnapshot)
	// INJECT the broadcast side into the service
	locationService.SetPublisher(dispatcher)

	middleware.InitPrometheus()
	services.InitMetrics()
}

func main() {
	defer func() {
		logger.Info("Closing database connection pool...")
		dbPool.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}()

	locationHandler := handlers.NewLocationHandler(locationService)
	liveHandler := handlers.NewLiveHandler(dispatcher, locationService)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	sweeps := []workers.Task{
		{
			Name:  "prune-rate-limit-visitors",
			Every: time.Minute,
			Run: func() {
				if n := rateLimiter.PruneVisitors(3 * time.Minute); n > 0 {
					logger.Debug("[Scheduler] pruned %d idle visitors", n)
				}
			},
		},
	}
	if memoryPositions != nil {
		sweeps = append(sweeps, workers.Task{
			Name:  "prune-liveness-markers",
			Every: cfg.SweepInterval,
			Run: func() {
				if n := memoryPositions.PruneExpired(); n > 0 {
					logger.Debug("[Scheduler] pruned %d expired liveness markers", n)
				}
			},
		})
	}
	scheduler, err := workers.Start(sweeps...)
	if err != nil {
		logger.Fatal("Failed to start scheduler: %v", err)
	}

	r := mux.NewRouter()
	r.Use(rateLimiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status": "unhealthy", "error": "redis connection failed"}`))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "meetup-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	handlers.RegisterRoomRoutes(api, locationHandler, liveHandler)

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)

	port := ":" + cfg.Port

	// no WriteTimeout: it would cut long-lived websocket connections
	server := http.Server{
		Addr:        port,
		Handler:     corsHandler(r),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Error starting server: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Got signal: %v", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
	dispatcher.Stop()
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("Scheduler shutdown error: %v", err)
	}

	logger.Info("Server shutdown complete")
}
