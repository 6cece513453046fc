// Package handler implements the HTTP server surface of spec.md §6.1,
// modeled on the teacher's internal/handler/server.go: a gin.Engine
// with the same middleware stack (request logging, recovery, CORS,
// rate limiting, security headers) plus this domain's routes instead
// of the teacher's pilot/thermal/station REST surface.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/lazyscout/lazyscout/internal/config"
	"github.com/lazyscout/lazyscout/internal/events"
	"github.com/lazyscout/lazyscout/internal/queue"
	"github.com/lazyscout/lazyscout/internal/rarity"
	"github.com/lazyscout/lazyscout/internal/security"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

// Server is the HTTP server surface of §6.1.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *utils.Logger
	hub        *eventHub
}

// ReloadFunc re-applies configuration; wired by the orchestrator so
// POST /config/reload and SIGHUP share one code path.
type ReloadFunc func() error

// New builds the Server and registers every route of §6.1.
func New(cfg *config.Config, q *queue.PriorityQueue, census *rarity.Census, filter filterer, sec *security.Middleware, reload ReloadFunc, logger *utils.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(loggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(rateLimitMiddleware())
	router.Use(securityHeadersMiddleware())

	hub := newEventHub(logger)
	q.SetEventSink(hub)

	rest := newRESTHandler(cfg, q, census, filter)

	router.GET("/health", rest.health)
	router.GET("/stats", rest.stats)
	router.GET("/queue", rest.getQueue)
	router.GET("/rarity", rest.getRarity)
	router.GET("/config", rest.getConfig)
	router.GET("/ws/v1/events", func(c *gin.Context) { hub.serveWS(c.Writer, c.Request) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := router.Group("/")
	webhooks.Use(sec.Gate())
	{
		webhooks.POST("/webhook", rest.postWebhook)
		webhooks.POST("/webhook/census", rest.postWebhookCensus)
	}

	router.POST("/config/reload", func(c *gin.Context) {
		if err := reload(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
	})

	return &Server{
		router: router,
		logger: logger,
		hub:    hub,
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
}

// EventSink exposes the admin WebSocket hub as an events.Sink so the
// orchestrator can wire it into other components (e.g. the dispatcher)
// if they gain their own event sources later.
func (s *Server) EventSink() events.Sink { return s.hub }

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.WithField("address", s.httpServer.Addr).Info("starting HTTP server")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func loggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Info("HTTP request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	})
}

// rateLimitMiddleware caps ingestion per §5's resource model; webhook
// feeders that exceed it get a 429 rather than queuing unboundedly.
func rateLimitMiddleware() gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(200), 400)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
