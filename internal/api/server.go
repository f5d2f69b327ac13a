// Package api exposes the video service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightclass/video-service/internal/access"
	"github.com/brightclass/video-service/internal/analytics"
	"github.com/brightclass/video-service/internal/auth"
	"github.com/brightclass/video-service/internal/config"
	"github.com/brightclass/video-service/internal/health"
	"github.com/brightclass/video-service/internal/ingest"
	"github.com/brightclass/video-service/internal/migrate"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/reconcile"
	"github.com/brightclass/video-service/internal/resolver"
	"github.com/brightclass/video-service/internal/videostore"
)

// Server configuration constants
const (
	ReadTimeout       = 30 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	WriteTimeout      = 300 * time.Second
	IdleTimeout       = 120 * time.Second
	MaxHeaderBytes    = 1 << 20 // 1 MB
)

// Server is the HTTP server for the video API.
type Server struct {
	httpServer    *http.Server
	cfg           *config.Config
	log           *slog.Logger
	detector      *access.Detector
	healthChecker *health.Checker
}

// ServerConfig holds dependencies for the server.
type ServerConfig struct {
	Config        *config.Config
	Logger        *slog.Logger
	Ingest        *ingest.Pipeline
	Resolver      *resolver.Resolver
	Videos        *videostore.Store
	Analytics     *analytics.Engine
	Migrations    *migrate.Engine
	Reconciler    *reconcile.Reconciler
	Guard         *access.Guard
	Detector      *access.Detector
	Bus           *progress.Bus
	JWTService    *auth.JWTService
	HealthChecker *health.Checker
	Downloads     resolver.StreamSigner
}

// NewServer creates the API server and wires its routes.
func NewServer(cfg *ServerConfig) (*Server, error) {
	handlers := NewHandlers(&HandlersConfig{
		Config:     cfg.Config,
		Logger:     cfg.Logger,
		Ingest:     cfg.Ingest,
		Resolver:   cfg.Resolver,
		Videos:     cfg.Videos,
		Analytics:  cfg.Analytics,
		Migrations: cfg.Migrations,
		Reconciler: cfg.Reconciler,
		Guard:      cfg.Guard,
		Detector:   cfg.Detector,
		Bus:        cfg.Bus,
		Downloads:  cfg.Downloads,
	})

	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", cfg.HealthChecker.Handler())
	mux.HandleFunc("GET /health/deep", cfg.HealthChecker.DeepHandler())
	mux.HandleFunc("POST /webhooks/provider", handlers.ProviderWebhookHandler)

	// Authenticated endpoints
	authed := func(h http.HandlerFunc) http.Handler {
		return cfg.JWTService.Middleware(h)
	}
	mux.Handle("POST /api/lessons/{lessonID}/video", authed(handlers.UploadVideoHandler))
	mux.Handle("POST /api/lessons/{lessonID}/video/managed-upload", authed(handlers.ManagedUploadHandler))
	mux.Handle("DELETE /api/lessons/{lessonID}/video", authed(handlers.DeleteVideoHandler))
	mux.Handle("GET /api/lessons/{lessonID}/playback", authed(handlers.PlaybackHandler))
	mux.Handle("GET /api/lessons/{lessonID}/download", authed(handlers.DownloadHandler))
	mux.Handle("GET /api/lessons/{lessonID}/progress", authed(handlers.ProgressStreamHandler))
	mux.Handle("GET /api/lessons/{lessonID}/analytics", authed(handlers.LessonAnalyticsHandler))
	mux.Handle("GET /api/lessons/{lessonID}/heatmap", authed(handlers.LessonHeatmapHandler))
	mux.Handle("POST /api/views", authed(handlers.RecordViewHandler))
	mux.Handle("GET /api/courses/{courseID}/analytics", authed(handlers.CourseAnalyticsHandler))
	mux.Handle("GET /api/dashboard", authed(handlers.TeacherDashboardHandler))
	mux.Handle("GET /api/dashboard/stream", authed(handlers.DashboardStreamHandler))

	// Admin endpoints
	mux.Handle("POST /api/admin/migrations", authed(handlers.MigrateBatchHandler))
	mux.Handle("POST /api/admin/migrations/{lessonID}/verify", authed(handlers.VerifyMigrationHandler))
	mux.Handle("POST /api/admin/migrations/{lessonID}/rollback", authed(handlers.RollbackMigrationHandler))
	mux.Handle("GET /api/admin/suspicious-users", authed(handlers.SuspiciousUsersHandler))

	// Metrics endpoint (internal only)
	mux.Handle("GET /metrics", internalOnlyMiddleware(promhttp.Handler()))

	handler := MetricsMiddleware(CORSMiddleware(cfg.Config.CORS.AllowedOrigins)(mux))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Config.API.Port,
		Handler:           handler,
		ReadTimeout:       ReadTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		MaxHeaderBytes:    MaxHeaderBytes,
	}

	return &Server{
		httpServer:    httpServer,
		cfg:           cfg.Config,
		log:           cfg.Logger,
		detector:      cfg.Detector,
		healthChecker: cfg.HealthChecker,
	}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Starting API server", "port", s.cfg.API.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server...")

	if s.detector != nil {
		s.detector.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// Private networks for internal-only middleware
var privateNetworks = []net.IPNet{
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
}

// internalOnlyMiddleware restricts access to internal networks.
func internalOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deny if X-Forwarded-For is present (came through load balancer)
		if r.Header.Get("X-Forwarded-For") != "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if isInternalRequest(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// isInternalRequest checks if the request is from an internal network.
func isInternalRequest(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback()
}
