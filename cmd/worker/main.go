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

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/scheduling-core/config"
	"github.com/jwalitptl/scheduling-core/internal/email"
	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-core/internal/worker"
	"github.com/jwalitptl/scheduling-core/pkg/logger"
	"github.com/jwalitptl/scheduling-core/pkg/metrics"
	"github.com/jwalitptl/scheduling-core/pkg/queue"
	"github.com/jwalitptl/scheduling-core/pkg/redisclient"
)

func setupHealthCheck(port int, ready func(ctx context.Context) error, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	appLogger := logger.NewLogger(cfg.Logging.ToLoggerConfig()).With("component", "worker")
	log.Logger = *appLogger.Zerolog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	rdb, err := redisclient.NewClient(ctx, cfg.Redis.ToClientConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry, cfg.Monitoring.Namespace, "worker")

	// Initialize repositories
	appointmentRepo := postgres.NewAppointmentRepository(db)
	userRepo := postgres.NewUserRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	pharmacyRepo := postgres.NewPharmacyRepository(db)
	labResultRepo := postgres.NewLabResultRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(db)

	var notifier email.Notifier
	if cfg.SMTP.Enabled {
		notifier = email.NewSMTPNotifier(cfg.SMTP.ToNotifierConfig(), appLogger)
	} else {
		log.Warn().Msg("SMTP disabled, notifications are logged instead of sent")
		notifier = email.NewLogNotifier(appLogger)
	}

	clock := clockwork.NewRealClock()
	handlers := map[model.JobType]worker.Handler{
		model.JobTypeReminder:           worker.NewReminderHandler(appointmentRepo, userRepo, patientRepo, clock),
		model.JobTypeLabResult:          worker.NewLabResultHandler(labResultRepo, userRepo, patientRepo, clock),
		model.JobTypePrescriptionStatus: worker.NewPrescriptionHandler(prescriptionRepo, patientRepo, pharmacyRepo),
	}

	w := worker.NewWorker(
		queue.NewRedisQueue(rdb, m),
		notifier,
		handlers,
		cfg.Worker.ToWorkerConfig(cfg.Queues),
		clock,
		appLogger,
		m,
	)

	// Setup health check endpoints
	health := setupHealthCheck(cfg.Worker.HealthPort, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	}, registry)

	log.Info().Strs("queues", cfg.Queues.All()).Msg("Worker started")
	if err := w.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Worker stopped with error")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = health.Shutdown(shutdownCtx)

	log.Info().Msg("Worker exited")
}
