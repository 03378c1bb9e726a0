package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/scheduling-core/internal/handler/health"
	"github.com/jwalitptl/scheduling-core/internal/handler/prometheus"
	"github.com/jwalitptl/scheduling-core/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RequestTimeout time.Duration
	// RateLimit <= 0 disables per-client limiting.
	RateLimit   rate.Limit
	RateBurst   int
	MetricsPath string
}

type Router struct {
	engine   *gin.Engine
	health   *health.Handler
	metrics  *prometheus.Handler
	handlers []Handler
	config   RouterConfig
}

func NewRouter(
	healthH *health.Handler,
	metricsH *prometheus.Handler,
	handlers []Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()

	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	r := &Router{
		engine:   engine,
		health:   healthH,
		metrics:  metricsH,
		handlers: handlers,
		config:   config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.ErrorHandler(),
		middleware.Validation(middleware.DefaultValidationConfig()),
	)
	if metricsH != nil {
		engine.Use(metricsH.Middleware())
	}

	return r
}

func (r *Router) Setup() {
	if r.health != nil {
		r.health.RegisterRoutes(r.engine)
	}
	if r.metrics != nil {
		r.engine.GET(r.config.MetricsPath, r.metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(middleware.Timeout(middleware.TimeoutConfig{Duration: r.config.RequestTimeout}))
	if r.config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		api.Use(limiter.RateLimit())
	}

	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
