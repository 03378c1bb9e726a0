package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/scheduling-core/config"
	"github.com/jwalitptl/scheduling-core/internal/handler/appointment"
	"github.com/jwalitptl/scheduling-core/internal/handler/health"
	notificationHandler "github.com/jwalitptl/scheduling-core/internal/handler/notification"
	promHandler "github.com/jwalitptl/scheduling-core/internal/handler/prometheus"
	"github.com/jwalitptl/scheduling-core/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-core/internal/router"
	"github.com/jwalitptl/scheduling-core/internal/service/booking"
	"github.com/jwalitptl/scheduling-core/internal/service/notification"
	"github.com/jwalitptl/scheduling-core/pkg/lock"
	"github.com/jwalitptl/scheduling-core/pkg/logger"
	"github.com/jwalitptl/scheduling-core/pkg/metrics"
	"github.com/jwalitptl/scheduling-core/pkg/queue"
	"github.com/jwalitptl/scheduling-core/pkg/redisclient"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(cfg.Logging.ToLoggerConfig())
	log.Logger = *appLogger.Zerolog()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	rdb, err := redisclient.NewClient(ctx, cfg.Redis.ToClientConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry, cfg.Monitoring.Namespace, "api")

	// Initialize repositories
	appointmentRepo := postgres.NewAppointmentRepository(db)
	userRepo := postgres.NewUserRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	labResultRepo := postgres.NewLabResultRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(db)

	// Initialize services
	locker := lock.NewRedisLocker(rdb, lock.Options{
		RetryInterval: cfg.Booking.LockRetryInterval,
		Logger:        appLogger,
	})
	jobs := queue.NewRedisQueue(rdb, m)
	directory := booking.NewCachedDirectory(userRepo, patientRepo, cfg.Booking.DirectoryCacheTTL)
	clock := clockwork.NewRealClock()

	bookingSvc := booking.NewService(
		appointmentRepo,
		directory,
		locker,
		jobs,
		cfg.Booking.ToServiceConfig(cfg.Queues),
		booking.WithClock(clock),
		booking.WithLogger(appLogger.With("component", "booking")),
		booking.WithMetrics(m),
	)
	producer := notification.NewProducer(
		labResultRepo,
		prescriptionRepo,
		jobs,
		notification.Queues{
			LabResults:    cfg.Queues.LabResults,
			Prescriptions: cfg.Queues.Prescriptions,
		},
		clock,
		appLogger.With("component", "notification"),
	)

	// Initialize handlers
	healthHandler := health.NewHandler(map[string]health.Check{
		"database": db.PingContext,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})
	metricsHandler := promHandler.New(registry, registry, cfg.Monitoring.Namespace)

	var limit rate.Limit
	if cfg.RateLimit.Enabled {
		limit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
	}

	// Setup router
	r := router.NewRouter(
		healthHandler,
		metricsHandler,
		[]router.Handler{
			appointment.NewHandler(bookingSvc),
			notificationHandler.NewHandler(producer),
		},
		router.RouterConfig{
			RequestTimeout: cfg.Server.RequestTimeout,
			RateLimit:      limit,
			RateBurst:      cfg.RateLimit.Burst,
			MetricsPath:    cfg.Monitoring.MetricsPath,
		},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited properly")
}
