package statusapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/odcproject/odc/internal/controller"
)

// StatusSource is the slice of Controller the status surface depends on.
type StatusSource interface {
	Status(ctx context.Context) map[string]string
	Stats() *controller.Stats
}

// Server is the read-only operator HTTP surface: /healthz is open, /status
// and /stats require a bearer session token minted by POST /login.
type Server struct {
	source      StatusSource
	issuer      *TokenIssuer
	cache       *StatusCache
	corsOrigins []string
	logger      *slog.Logger
	httpServer  *http.Server
}

// NewServer builds a Server. issuer may be nil to run the surface without
// authentication (local development only).
func NewServer(source StatusSource, issuer *TokenIssuer, cache *StatusCache, corsOrigins []string, logger *slog.Logger) *Server {
	return &Server{source: source, issuer: issuer, cache: cache, corsOrigins: corsOrigins, logger: logger}
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware())

	corsCfg := cors.DefaultConfig()
	if len(s.corsOrigins) > 0 {
		corsCfg.AllowOrigins = s.corsOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", s.healthHandler)
	r.POST("/login", s.loginHandler)

	protected := r.Group("/")
	protected.Use(s.authMiddleware())
	{
		protected.GET("/status", s.statusHandler)
		protected.GET("/stats", s.statsHandler)
	}

	return r
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("status request", "path", c.Request.URL.Path, "status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.issuer == nil {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}
		if err := s.issuer.Validate(tokenString); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) loginHandler(c *gin.Context) {
	if s.issuer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "status surface has no authentication configured"})
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	session, err := s.issuer.Exchange(body.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_token": session})
}

func (s *Server) statusHandler(c *gin.Context) {
	if s.cache != nil {
		if snapshot, ok := s.cache.Get(c.Request.Context()); ok {
			c.JSON(http.StatusOK, gin.H{"partitions": snapshot, "cached": true})
			return
		}
	}
	snapshot := s.source.Status(c.Request.Context())
	if s.cache != nil {
		s.cache.Set(c.Request.Context(), snapshot)
	}
	c.JSON(http.StatusOK, gin.H{"partitions": snapshot, "cached": false})
}

func (s *Server) statsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Stats().Snapshot())
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start(listen string) error {
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.logger.Info("status surface listening", "addr", listen)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
