package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appconfig "memeflow/config"
	"memeflow/internal/cache"
	"memeflow/internal/metrics"
	"memeflow/internal/pipeline"
	"memeflow/internal/ws"
	"memeflow/logger"
)

const defaultCacheControl = "s-maxage=60, stale-while-revalidate=300"

// Server hosts the Gin-powered HTTP surface of memeflow: the meme list
// endpoint plus health, status, metrics and the websocket stream.
type Server struct {
	config      *appconfig.Config
	pipeline    *pipeline.Pipeline
	cache       *cache.ResultCache
	dispatcher  *Dispatcher
	broadcaster *ws.Broadcaster
	httpServer  *http.Server
	startedAt   time.Time
	log         *logger.Log
}

// NewServer wires the pipeline and the optional sinks behind the HTTP
// surface. cache and dispatcher may be nil when disabled.
func NewServer(cfg *appconfig.Config, p *pipeline.Pipeline, resultCache *cache.ResultCache, dispatcher *Dispatcher, broadcaster *ws.Broadcaster) *Server {
	return &Server{
		config:      cfg,
		pipeline:    p,
		cache:       resultCache,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		startedAt:   time.Now(),
		log:         logger.GetLogger(),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled
// or the server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    normalizeAddress(s.config.Server.Address),
		Handler: router,
	}

	s.log.WithComponent("server").WithFields(logger.Fields{
		"address": s.httpServer.Addr,
	}).Info("http server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.CustomRecovery(s.recovered), requestID())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.Header("Allow", http.MethodGet)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method_not_allowed"})
	})

	router.GET("/api/memelist", s.handleMemelist)
	router.GET("/healthz", s.handleHealth)
	router.GET("/api/status", s.handleStatus)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	if s.broadcaster != nil {
		router.GET("/ws", gin.WrapF(s.broadcaster.Handler()))
	}

	return router, nil
}

// recovered turns a handler panic on the list endpoint into the same
// 502 {error} shape a pipeline failure produces; other routes keep the
// plain 500.
func (s *Server) recovered(c *gin.Context, err interface{}) {
	s.log.WithComponent("server").WithFields(logger.Fields{
		"panic": err,
		"path":  c.FullPath(),
	}).Error("handler panicked")

	if c.FullPath() == "/api/memelist" {
		metrics.IncrementHTTPRequest("memelist", "502")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "internal_error"})
		return
	}
	c.AbortWithStatus(http.StatusInternalServerError)
}

// handleMemelist serves one discovery pass. Results are cached per
// (limit, chainId) when the cache is enabled; a fresh run is fanned out
// to the sinks before the response is written.
func (s *Server) handleMemelist(c *gin.Context) {
	limit := s.clampLimit(c.Query("limit"))
	chainID := strings.ToLower(strings.TrimSpace(c.Query("chainId")))

	cacheControl := s.config.Server.CacheControl
	if cacheControl == "" {
		cacheControl = defaultCacheControl
	}
	c.Header("Cache-Control", cacheControl)

	if s.cache != nil {
		if cached := s.cache.Get(c.Request.Context(), limit, chainID); cached != nil {
			metrics.IncrementHTTPRequest("memelist", "200")
			c.JSON(http.StatusOK, gin.H{
				"total": cached.Total,
				"limit": cached.Limit,
				"items": cached.Items,
			})
			return
		}
	}

	result, err := s.pipeline.Run(c.Request.Context(), limit, chainID)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Error("pipeline run failed")
		metrics.IncrementHTTPRequest("memelist", "502")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if s.cache != nil {
		s.cache.Set(c.Request.Context(), result)
	}
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(result)
	}

	metrics.IncrementHTTPRequest("memelist", "200")
	c.JSON(http.StatusOK, gin.H{
		"total": result.Total,
		"limit": result.Limit,
		"items": result.Items,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"name":      s.config.Memeflow.Name,
		"version":   s.config.Memeflow.Version,
		"uptime":    time.Since(s.startedAt).String(),
		"feeds":     len(s.config.Feeds.EnabledFeeds()),
		"resources": logger.ResourceSnapshot(),
	}
	if s.broadcaster != nil {
		status["ws_clients"] = s.broadcaster.ClientCount()
	}
	c.JSON(http.StatusOK, status)
}

// clampLimit parses the limit query parameter into [1, max], falling
// back to the configured default on anything unparseable.
func (s *Server) clampLimit(raw string) int {
	max := s.config.Server.MaxLimit
	if max <= 0 {
		max = 100
	}
	def := s.config.Server.DefaultLimit
	if def <= 0 {
		def = 10
	}
	if def > max {
		def = max
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// requestID stamps every request with a correlation id, echoed in the
// response for log matching.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
