package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/scheduling-core/internal/email"
	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
	"github.com/jwalitptl/scheduling-core/pkg/logger"
	"github.com/jwalitptl/scheduling-core/pkg/metrics"
	"github.com/jwalitptl/scheduling-core/pkg/queue"
)

// ErrSkip tells the worker the notification is no longer wanted. Skipped
// jobs are dropped without retry.
var ErrSkip = errors.New("notification skipped")

func skip(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSkip, fmt.Sprintf(format, args...))
}

// Handler owns one job type. Prepare re-reads the authoritative state and
// returns the messages to send; MarkDelivered records that they went out.
type Handler interface {
	Prepare(ctx context.Context, job *model.Job) ([]email.Message, error)
	MarkDelivered(ctx context.Context, job *model.Job) error
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeRequeued  Outcome = "requeued"
	OutcomeDropped   Outcome = "dropped"
	OutcomeUnknown   Outcome = "unknown_type"
)

const (
	DefaultPollTimeout     = 5 * time.Second
	DefaultRedelayInterval = time.Second
	DefaultMaxRetries      = 3
	DefaultDepthInterval   = 15 * time.Second

	errorBackoff = time.Second
)

type Config struct {
	Queues          []string
	PollTimeout     time.Duration
	RedelayInterval time.Duration
	// MaxRetries bounds delivery attempts per job, the first one included.
	MaxRetries    int
	Concurrency   int
	DepthInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.RedelayInterval <= 0 {
		c.RedelayInterval = DefaultRedelayInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.DepthInterval <= 0 {
		c.DepthInterval = DefaultDepthInterval
	}
	return c
}

type Worker struct {
	queue    queue.Queue
	notifier email.Notifier
	handlers map[model.JobType]Handler
	config   Config
	clock    clockwork.Clock
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewWorker(
	q queue.Queue,
	notifier email.Notifier,
	handlers map[model.JobType]Handler,
	config Config,
	clock clockwork.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New("worker")
	}
	return &Worker{
		queue:    q,
		notifier: notifier,
		handlers: handlers,
		config:   config.withDefaults(),
		clock:    clock,
		logger:   log,
		metrics:  m,
	}
}

// Run consumes every configured queue with Concurrency goroutines each and
// blocks until ctx is cancelled and all consumers have returned.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.config.Queues) == 0 {
		return errors.New("worker: no queues configured")
	}

	var wg sync.WaitGroup
	for _, name := range w.config.Queues {
		for i := 0; i < w.config.Concurrency; i++ {
			wg.Add(1)
			go func(name string, id int) {
				defer wg.Done()
				w.consume(ctx, name, id)
			}(name, i)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reportDepth(ctx)
	}()

	w.logger.Info("notification worker started",
		"queues", w.config.Queues,
		"concurrency", w.config.Concurrency,
	)
	wg.Wait()
	w.logger.Info("notification worker stopped")
	return nil
}

func (w *Worker) consume(ctx context.Context, queueName string, id int) {
	log := w.logger.WithFields(map[string]interface{}{"queue": queueName, "consumer": id})

	for ctx.Err() == nil {
		job, err := w.queue.Dequeue(ctx, queueName, w.config.PollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrEmpty):
			continue
		case errors.Is(err, queue.ErrMalformed):
			w.metrics.MalformedPayload.WithLabelValues(queueName).Inc()
			log.Error(err, "dropping malformed job")
			continue
		case ctx.Err() != nil:
			return
		default:
			log.Error(err, "failed to dequeue job")
			sleep(ctx, errorBackoff)
			continue
		}

		if w.Process(ctx, queueName, job) == OutcomeDeferred {
			sleep(ctx, w.config.RedelayInterval)
		}
	}
}

// Process runs one dequeued job through its handler. It never returns an
// error: failures are retried, logged or dropped here. Delivery is at least
// once: when a job carries several messages and a later one fails, the retry
// sends the earlier ones again.
func (w *Worker) Process(ctx context.Context, queueName string, job *model.Job) Outcome {
	outcome := w.process(ctx, queueName, job)
	w.metrics.JobsProcessed.WithLabelValues(string(job.Type), string(outcome)).Inc()
	return outcome
}

func (w *Worker) process(ctx context.Context, queueName string, job *model.Job) Outcome {
	log := w.logger.WithFields(map[string]interface{}{
		"queue":      queueName,
		"job_type":   string(job.Type),
		"subject_id": job.SubjectID.String(),
		"attempts":   job.Attempts,
	})

	if !job.Due(w.clock.Now()) {
		if err := w.queue.Enqueue(context.WithoutCancel(ctx), queueName, job); err != nil {
			log.Error(err, "failed to requeue job that is not due yet")
			return OutcomeDropped
		}
		return OutcomeDeferred
	}

	handler, ok := w.handlers[job.Type]
	if !ok {
		log.Error(fmt.Errorf("unknown job type %q", job.Type), "dropping job")
		return OutcomeUnknown
	}

	messages, err := handler.Prepare(ctx, job)
	if errors.Is(err, ErrSkip) {
		log.Info("notification skipped", "reason", err.Error())
		return OutcomeSkipped
	}
	if err != nil {
		return w.retry(ctx, queueName, job, log, err)
	}

	timer := prometheus.NewTimer(w.metrics.DeliveryLatency.WithLabelValues(string(job.Type)))
	for _, m := range messages {
		if err := w.notifier.Send(ctx, m.To, m.Subject, m.Body); err != nil {
			timer.ObserveDuration()
			return w.retry(ctx, queueName, job, log, err)
		}
	}
	timer.ObserveDuration()

	// A failed marker is not retried: the messages already went out and a
	// retry would send them again.
	if err := handler.MarkDelivered(ctx, job); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			log.Warn("delivery already recorded by another consumer")
		} else {
			log.Error(err, "failed to record delivery")
		}
	}

	log.Info("notification delivered", "messages", len(messages))
	return OutcomeDelivered
}

// retry requeues job at the tail with one more attempt, or drops it once
// MaxRetries attempts have failed.
func (w *Worker) retry(ctx context.Context, queueName string, job *model.Job, log *logger.Logger, cause error) Outcome {
	job.Attempts++
	if job.Attempts >= w.config.MaxRetries {
		log.Error(cause, "notification failed permanently, dropping job", "attempts", job.Attempts)
		return OutcomeDropped
	}

	// a job taken off the queue must go back even during shutdown
	if err := w.queue.Enqueue(context.WithoutCancel(ctx), queueName, job); err != nil {
		log.Error(err, "failed to requeue failed job", "cause", cause.Error())
		return OutcomeDropped
	}

	log.Warn("notification failed, requeued", "error", cause.Error(), "attempts", job.Attempts)
	return OutcomeRequeued
}

func (w *Worker) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(w.config.DepthInterval)
	defer ticker.Stop()

	for {
		w.observeDepth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) observeDepth(ctx context.Context) {
	for _, name := range w.config.Queues {
		n, err := w.queue.Len(ctx, name)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error(err, "failed to read queue depth", "queue", name)
			}
			continue
		}
		w.metrics.QueueDepth.WithLabelValues(name).Set(float64(n))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
