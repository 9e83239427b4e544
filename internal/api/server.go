// Package api serves trained risk models over HTTP: ranked patrol
// recommendations, model metadata, and cell geometry for map rendering.
//
// The server starts without a model and reports not-ready until one is set;
// SetModel swaps artifacts atomically under load, so a retrain rolls out with
// no restart and no request ever sees a half-loaded model.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riverweft/patrolcast/internal/config"
	"github.com/riverweft/patrolcast/internal/domain"
	"github.com/riverweft/patrolcast/internal/hexgrid"
	"github.com/riverweft/patrolcast/internal/model"
	"github.com/riverweft/patrolcast/internal/observability"
	"github.com/riverweft/patrolcast/internal/recommend"
)

// served pairs a model with the recommendation engine built over its grid.
// The pair swaps as a unit so the engine can never score against a different
// artifact than the one reported by metadata.
type served struct {
	model *model.RiskModel
	rec   *recommend.Engine
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	router  *gin.Engine
	cache   *lruCache

	mu      sync.RWMutex
	serving *served
}

// New constructs a server with routes and middleware. No model is loaded yet;
// the server answers health checks but reports not-ready until SetModel.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		router:  router,
		cache:   newLRUCache(cfg.CacheSize),
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.router
}

// SetModel swaps the served artifact. Safe under concurrent requests; the
// recommendation cache is cleared because its entries are keyed to the old
// version.
func (s *Server) SetModel(m *model.RiskModel) error {
	eng, err := recommend.New(m, m.Grid, m.Version)
	if err != nil {
		return fmt.Errorf("api: load model %s: %w", m.Version, err)
	}

	s.mu.Lock()
	s.serving = &served{model: m, rec: eng}
	s.mu.Unlock()

	s.cache.clear()
	s.metrics.ModelLoaded.Set(1)
	s.logger.Info("model loaded",
		"version", m.Version,
		"train_year", m.TrainYear,
		"grid_size", len(m.Grid),
	)
	return nil
}

func (s *Server) current() *served {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serving
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/readyz", s.handleReadyz)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	if s.cfg.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}
	v1.GET("/model", s.handleModel)
	v1.GET("/windows", s.handleWindows)
	v1.GET("/recommendations", s.handleRecommendations)
	v1.GET("/cells/:cell/boundary", s.handleCellBoundary)
}

func (s *Server) handleReadyz(c *gin.Context) {
	cur := s.current()
	if cur == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no model loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "model_version": cur.model.Version})
}

func (s *Server) handleModel(c *gin.Context) {
	cur := s.current()
	if cur == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no model loaded"})
		return
	}
	m := cur.model

	features := make([]gin.H, 0, len(m.FeatureNames))
	for i, name := range m.FeatureNames {
		features = append(features, gin.H{
			"name":       name,
			"importance": m.Forest.FeatureImportances[i],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"version":            m.Version,
		"schema_version":     m.SchemaVersion,
		"resolution":         m.Resolution,
		"train_year":         m.TrainYear,
		"train_observations": m.TrainObservations,
		"config_fingerprint": m.ConfigFingerprint,
		"trained_at":         m.TrainedAt,
		"grid_size":          len(m.Grid),
		"hyperparams":        m.Hyperparams,
		"features":           features,
	})
}

func (s *Server) handleWindows(c *gin.Context) {
	days := make([]string, 0, 7)
	for d := domain.Monday; d <= domain.Sunday; d++ {
		days = append(days, d.String())
	}

	starts := s.cfg.Engine.PeriodStarts
	periods := make([]gin.H, 0, domain.NumPeriods)
	for p := domain.Morning; p <= domain.LateNight; p++ {
		end := starts[(int(p)+1)%domain.NumPeriods] // LateNight wraps to Morning's start
		periods = append(periods, gin.H{
			"name":       p.String(),
			"start_hour": starts[p],
			"end_hour":   end,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"days":    days,
		"periods": periods,
		"windows": domain.NumWindows,
	})
}

func (s *Server) handleRecommendations(c *gin.Context) {
	start := time.Now()

	cur := s.current()
	if cur == nil {
		s.metrics.RecommendationRequests.WithLabelValues("not_ready").Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no model loaded"})
		return
	}

	w, err := recommend.ParseQuery(c.Query("day"), c.Query("period"))
	if err != nil {
		s.metrics.RecommendationRequests.WithLabelValues("bad_query").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	topK := s.cfg.Engine.TopK
	if raw := c.Query("top_k"); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil || parsed < 1 {
			s.metrics.RecommendationRequests.WithLabelValues("bad_query").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("top_k %q must be a positive integer", raw)})
			return
		}
		topK = parsed
	}

	key := fmt.Sprintf("%s|%d|%d", cur.model.Version, w.Ordinal(), topK)
	result, ok := s.cache.get(key)
	if ok {
		s.metrics.RecommendationCache.WithLabelValues("hit").Inc()
	} else {
		s.metrics.RecommendationCache.WithLabelValues("miss").Inc()
		result, err = cur.rec.Recommend(w, topK)
		if err != nil {
			s.metrics.RecommendationRequests.WithLabelValues("error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		s.metrics.PredictionsServed.Add(float64(result.GridSize))
		s.cache.put(key, result)
	}

	s.metrics.RecommendationRequests.WithLabelValues("ok").Inc()
	s.metrics.RecommendationDuration.Observe(time.Since(start).Seconds())

	c.JSON(http.StatusOK, gin.H{
		"day":           result.Window.Day.String(),
		"period":        result.Window.Period.String(),
		"model_version": result.ModelVersion,
		"generated_at":  result.GeneratedAt,
		"grid_size":     result.GridSize,
		"entries":       result.Entries,
	})
}

func (s *Server) handleCellBoundary(c *gin.Context) {
	cell := domain.CellID(c.Param("cell"))
	boundary, err := hexgrid.Boundary(cell)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resolution, err := hexgrid.CellResolution(cell)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cell":       cell,
		"resolution": resolution,
		"boundary":   boundary,
	})
}

// requestLogger logs every request through the server's slog logger. Probe
// and scrape paths log at debug so steady-state logs stay readable.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		switch c.Request.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			level = slog.LevelDebug
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
