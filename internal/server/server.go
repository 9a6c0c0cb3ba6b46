// Package server exposes the panorama proxy, the observation records and
// the survey session over HTTP using gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"treewalk/internal/logging"
	"treewalk/internal/panorama"
	"treewalk/internal/session"
)

// DefaultMaxImportBytes caps CSV uploads.
const DefaultMaxImportBytes int64 = 10 << 20

// Config holds the HTTP surface settings.
type Config struct {
	AllowedOrigins []string
	Radius         float64
	MaxImportBytes int64
}

// Deps are the components the handlers call into.
type Deps struct {
	Session *session.Controller
	Finder  panorama.Finder
	Metrics http.Handler
	Logger  log.Interface
}

// Server owns the gin engine.
type Server struct {
	cfg     Config
	session *session.Controller
	finder  panorama.Finder
	logger  log.Interface
	engine  *gin.Engine
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	if cfg.Radius <= 0 {
		cfg.Radius = panorama.DefaultRadius
	}
	if cfg.MaxImportBytes <= 0 {
		cfg.MaxImportBytes = DefaultMaxImportBytes
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		cfg:     cfg,
		session: deps.Session,
		finder:  deps.Finder,
		logger:  logging.OrDefault(deps.Logger),
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger), cors(cfg.AllowedOrigins))
	s.routes(engine, deps.Metrics)
	s.engine = engine
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes(r *gin.Engine, metrics http.Handler) {
	r.GET("/health", s.health)
	r.GET("/nearest-image", s.nearestImage)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api/v1")
	api.GET("/observations", s.listObservations)
	api.GET("/observations/export", s.exportObservations)
	api.GET("/observations/:id", s.getObservation)
	api.POST("/observations/import", s.importObservations)
	api.GET("/markers", s.markers)
	api.GET("/legend", s.legend)

	sess := api.Group("/session")
	sess.GET("", s.snapshot)
	sess.POST("/mode", s.setMode)
	sess.POST("/explore", s.explore)
	sess.POST("/center", s.pan)
	sess.POST("/select", s.selectLocation)
	sess.POST("/refresh", s.refresh)
	sess.POST("/label", s.label)
	sess.PUT("/form", s.updateForm)
	sess.POST("/form/submit", s.submitForm)
	sess.POST("/form/cancel", s.cancelForm)
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
