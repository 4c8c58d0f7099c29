package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/codegen"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (or JWT_SECRET) must be set")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var (
		loader     memory.QuizLoader     = memory.NewStaticQuizLoader(sampleQuizzes())
		sessions   app.SessionRepository = memory.NewSessionRepository()
		enrollment app.EnrollmentChecker = memory.NewEnrollment()
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		db := openBun(cfg.Postgres.URL)
		defer db.Close()

		loader = postgres.NewQuizLoader(pool)
		enrollment = postgres.NewEnrollment(pool)
		sessions = postgres.NewSessionRepository(db)
	} else {
		logger.Warn("postgres not configured, sessions are kept in memory and class restrictions reject everyone")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizzes app.QuizRepository = memory.NewQuizRepository(loader, quizTTL)
		rooms   app.RoomStore      = memory.NewRoomStore()
	)
	hub := transport.NewHub(logger)
	var notifier app.Notifier = hub
	var redisNotifier *redisinfra.Notifier
	if redisClient != nil {
		quizzes = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
		rooms = redisinfra.NewRoomStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
		redisNotifier = redisinfra.NewNotifier(redisClient, logger, 256)
		notifier = redisNotifier
	}

	writes := app.NewSynchronizer(sessions, logger, app.SyncOptions{
		Workers:        cfg.Sync.Workers,
		QueueSize:      cfg.Sync.QueueSize,
		MaxRetries:     cfg.Sync.MaxRetries,
		InitialBackoff: config.TTLDuration(cfg.Sync.InitialBackoff, 100*time.Millisecond),
	})
	// Writes outlive the serving context so Stop can drain them after shutdown.
	writesCtx, cancelWrites := context.WithCancel(context.Background())
	defer cancelWrites()
	writes.Start(writesCtx)

	lifecycle := app.NewLifecycle(sessions, writes)
	registry := app.NewRegistry(app.RegistryDeps{
		Store:      rooms,
		Lifecycle:  lifecycle,
		Writes:     writes,
		Enrollment: enrollment,
		Emitter:    hub,
		Notifier:   notifier,
		Logger:     logger,
	})
	codes := codegen.NewGenerator(registry.CodeTaken(sessions))
	live := app.NewLiveService(registry, sessions, quizzes, codes, logger)
	sessionService := app.NewSessionService(sessions, quizzes, registry, lifecycle, codes)

	auth := transport.NewJWTAuth(cfg.Auth.JWTSecret)
	router := transport.NewRouter(
		transport.NewWSHandler(live, hub, auth, logger),
		transport.NewSessionHandler(sessionService, logger),
		auth,
		logger,
	)
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting live quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return registry.RunSweeper(gctx,
			config.TTLDuration(cfg.Rooms.SweepInterval, time.Minute),
			config.TTLDuration(cfg.Rooms.IdleTTL, 2*time.Hour))
	})
	if redisNotifier != nil {
		g.Go(func() error { return redisNotifier.Run(gctx) })
		g.Go(func() error { return redisinfra.Relay(gctx, redisClient, logger, hub.DeliverToUser) })
	}

	err = g.Wait()
	writes.Stop()
	return err
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// sampleQuizzes seeds quiz content when no database is configured.
func sampleQuizzes() map[string]domain.QuizContent {
	return map[string]domain.QuizContent{
		"quiz-1": {ID: "quiz-1", Title: "Warm-up: arithmetic", TeacherID: "teacher-1", GameType: "quiz"},
		"quiz-2": {ID: "quiz-2", Title: "Fractions sprint", TeacherID: "teacher-1", GameType: "race"},
	}
}
