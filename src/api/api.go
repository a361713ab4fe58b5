// Package api serves the guard admin HTTP surface, health and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stake-plus/groupguard/src/guard/admin"
	"github.com/stake-plus/groupguard/src/metrics"
	"go.uber.org/zap"
)

// Config controls the HTTP server.
type Config struct {
	Addr        string
	JWTSecret   []byte
	CORSOrigins []string
	// RateLimit is requests per second per client IP on the secured routes.
	RateLimit int
	RateBurst int
}

type Server struct {
	cfg    Config
	admin  *admin.Service
	log    *zap.Logger
	engine *gin.Engine
	srv    *http.Server
}

func New(cfg Config, svc *admin.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	s := &Server{cfg: cfg, admin: svc, log: log}
	s.engine = s.router()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", metrics.Handler())

	h := handlers{svc: s.admin, log: s.log}
	v1 := r.Group("/v1")
	v1.Use(RateLimiter(s.cfg.RateLimit, s.cfg.RateBurst), JWTMiddleware(s.cfg.JWTSecret))
	groups := v1.Group("/groups/:group", GroupAccess())
	{
		groups.GET("/settings", h.status)
		groups.POST("/actions", h.action)
		groups.GET("/rules", h.listRules)
		groups.POST("/rules", h.addRule)
		groups.DELETE("/rules", h.clearRules)
		groups.DELETE("/rules/:id", h.removeRule)
	}
	return r
}

// ListenAndServe blocks until ctx is cancelled, then shuts the server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api: listening", zap.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutCtx)
}
