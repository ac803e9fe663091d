package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"match-call-backend/internal/breaker"
	"match-call-backend/internal/config"
	"match-call-backend/internal/handlers"
	"match-call-backend/internal/logging"
	"match-call-backend/internal/matching"
	"match-call-backend/internal/middleware"
	"match-call-backend/internal/repository"
	"match-call-backend/internal/seed"
	"match-call-backend/internal/services"
	"match-call-backend/internal/supervisor"
	"match-call-backend/internal/transport"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// RunServer starts the HTTP and WebSocket front door and the result listener
func RunServer(configPath string) {
	cfg := loadConfig(configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := connectDatabase(ctx, cfg)
	defer db.Close()

	broker := connectBroker(cfg)
	defer closeBroker(broker)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	pool, locker := buildPool(cfg, db)

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret)

	var photoService *services.PhotoService
	var photoSigner services.PhotoSigner
	if cfg.AWS.S3Bucket != "" {
		var err error
		photoService, err = services.NewPhotoService(ctx, services.PhotoStorageConfig{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
		}, breaker.New("photo-storage", cfg.Breaker))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create photo service")
		}
		photoSigner = photoService
	}

	profileService := services.NewProfileService(profileRepo, photoSigner)
	matchService := services.NewMatchService(profileService, broker, poolSizer(cfg, pool))
	wsHub := services.NewWSHub()
	defer wsHub.Close()
	resultListener := services.NewResultListener(broker, wsHub, profileService)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	profileHandler := handlers.NewProfileHandler(profileService)
	matchHandler := handlers.NewMatchHandler(matchService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, matchService)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": db.Ping,
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.LimitByIP(20, cfg.RateLimit.Window))
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)
			r.Post("/refresh", userHandler.Refresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))
			r.Get("/users/me", userHandler.Me)
			r.Get("/profile/me", profileHandler.GetProfile)
			r.Put("/profile/me", profileHandler.UpdateProfile)
			if photoService != nil {
				r.Post("/profile/photos/upload", handlers.NewPhotoHandler(photoService).UploadPhoto)
			}
			r.Get("/match/pool", matchHandler.PoolStatus)
			r.With(httprate.Limit(
				cfg.RateLimit.MatchRequests,
				cfg.RateLimit.Window,
				httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					return middleware.GetUserID(r.Context()), nil
				}),
			)).Post("/match", matchHandler.FindMatch)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree := supervisor.NewTree("match-server", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPI(supervisor.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	tree.AddMatching(supervisor.NewLoopService("result-listener", resultListener.Run))
	if cfg.Matching.RunsCoordinatorInServer() {
		coordinator := newCoordinator(cfg, pool, locker, broker)
		tree.AddMatching(supervisor.NewLoopService("coordinator", coordinator.Run))
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("transport", cfg.Matching.Transport).
		Str("pool", cfg.Matching.Pool).
		Msg("Starting server")

	serve(ctx, tree)
	log.Info().Msg("Server exited")
}

// RunWorker runs a standalone matching coordinator
func RunWorker(configPath string) {
	cfg := loadConfig(configPath)
	if err := checkWorkerConfig(cfg); err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Matching.Transport).Msg("Invalid worker configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *pgxpool.Pool
	if cfg.Matching.SharedPool() {
		db = connectDatabase(ctx, cfg)
		defer db.Close()
	} else {
		log.Warn().Msg("Worker is using an in-memory pool; it will not share waiting users with other processes")
	}

	broker := connectBroker(cfg)
	defer closeBroker(broker)

	pool, locker := buildPool(cfg, db)
	coordinator := newCoordinator(cfg, pool, locker, broker)

	tree := supervisor.NewTree("match-worker", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMatching(supervisor.NewLoopService("coordinator", coordinator.Run))

	log.Info().Msg("Matching worker started")
	serve(ctx, tree)
	log.Info().Msg("Matching worker stopped")
}

// RunSeed creates count fake accounts with profiles
func RunSeed(configPath string, count int, seedValue int64) {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	if count <= 0 {
		log.Fatal().Int("count", count).Msg("Please provide a valid number of users to generate")
	}

	db := connectDatabase(ctx, cfg)
	defer db.Close()

	seeder := seed.NewSeeder(
		repository.NewUserRepository(db),
		repository.NewProfileRepository(db),
		seed.NewGenerator(seedValue),
	)
	if _, err := seeder.Run(ctx, count); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate fake data")
	}
	log.Info().Str("password", seed.DefaultPassword).Msg("Fake data generation completed")
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfg.Node.ID == "" {
		cfg.Node.ID = uuid.New().String()
	}
	return cfg
}

func connectDatabase(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database schema")
		}
	}
	return db
}

func connectBroker(cfg *config.Config) *transport.Broker {
	logger := transport.NewZerologAdapter()

	var broker *transport.Broker
	if cfg.Matching.Transport == "local" {
		broker = transport.NewLocalBroker(logger)
		log.Info().Msg("Using in-process transport")
	} else {
		natsCfg := cfg.NATS
		var embedded *transport.EmbeddedServer
		if natsCfg.Embedded {
			var err error
			embedded, err = transport.StartEmbeddedServer("127.0.0.1", natsCfg.EmbeddedPort)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			natsCfg.URL = embedded.ClientURL()
			log.Info().Str("url", natsCfg.URL).Msg("Embedded NATS server started")
		}

		var err error
		broker, err = transport.NewNATSBroker(natsCfg, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		if embedded != nil {
			broker.OnClose(embedded.Shutdown)
		}
		log.Info().Str("url", natsCfg.URL).Msg("NATS transport connected")
	}

	broker.SetCircuitBreaker(breaker.New("transport", cfg.Breaker))
	return broker
}

func closeBroker(b *transport.Broker) {
	if err := b.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close transport")
	}
}

// buildPool returns the waiting pool and, when request dedup is on, the
// request locker. db is only used for the shared pool.
func buildPool(cfg *config.Config, db *pgxpool.Pool) (matching.Pool, matching.RequestLocker) {
	var (
		pool   matching.Pool
		locker matching.RequestLocker
	)
	if cfg.Matching.SharedPool() {
		pool = repository.NewWaitingRepository(db)
		if cfg.Matching.RequestDedup {
			locker = repository.NewRequestLockRepository(db)
		}
	} else {
		pool = repository.NewMemoryWaitingPool()
		if cfg.Matching.RequestDedup {
			locker = repository.NewMemoryRequestLocker()
		}
	}
	return matching.NewGuardedPool(pool, breaker.New("waiting-pool", cfg.Breaker)), locker
}

// poolSizer returns pool when its size counts the users waiting behind this
// server. An in-memory pool that no local coordinator fills reports nothing.
func poolSizer(cfg *config.Config, pool matching.Pool) services.PoolSizer {
	if !cfg.Matching.SharedPool() && !cfg.Matching.RunsCoordinatorInServer() {
		log.Warn().Msg("In-memory pool is not fed by a coordinator in this process; pool size is unavailable")
		return nil
	}
	return pool
}

// checkWorkerConfig rejects settings under which a worker can never receive
// a request
func checkWorkerConfig(cfg *config.Config) error {
	if cfg.Matching.Transport == "local" {
		return errors.New("worker requires the nats transport; the local transport only reaches its own process")
	}
	return nil
}

func newCoordinator(cfg *config.Config, pool matching.Pool, locker matching.RequestLocker, broker *transport.Broker) *matching.Coordinator {
	return matching.NewCoordinator(pool, locker, broker, matching.Config{
		Threshold:        cfg.Matching.Threshold,
		MaxClaimAttempts: cfg.Matching.MaxClaimAttempts,
		NodeID:           cfg.Node.ID,
		RequestLockTTL:   cfg.Matching.RequestLockTTL,
		JanitorInterval:  cfg.Matching.JanitorInterval,
	})
}

func serve(ctx context.Context, tree *supervisor.Tree) {
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Supervisor stopped")
		os.Exit(1)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		log.Warn().Int("count", len(report)).Msg("Services did not stop in time")
	}
}
