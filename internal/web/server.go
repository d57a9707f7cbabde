// Package web serves the browser UI for uploading a workbook and running the
// credit-risk analysis.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/klytics/creditkit/internal/analysis"
	"github.com/klytics/creditkit/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	// DefaultMaxUpload bounds the size of an uploaded workbook.
	DefaultMaxUpload = 10 << 20
	// DefaultSessionTTL is how long an untouched session is kept in memory.
	DefaultSessionTTL = 2 * time.Hour
)

// Config holds configuration for the web server.
type Config struct {
	Registry *analysis.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	Addr          string
	SessionSecret string
	// MaxUpload is the upload limit in bytes.
	MaxUpload int64
	// AnalyzeRPS limits analysis triggers per session; zero disables the limit.
	AnalyzeRPS float64
	SessionTTL time.Duration
}

// Server is the web UI server.
type Server struct {
	registry     *analysis.Registry
	metrics      *metrics.Metrics
	sessionStore *sessions.CookieStore
	limiter      *limiter
	logger       *slog.Logger
	page         *template.Template

	addr      string
	maxUpload int64
	ttl       time.Duration
}

// NewServer creates a new web server instance. Without a session secret a
// random key is generated, so cookies do not survive a restart.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
		logger.Debug("no session secret configured, using a random key")
	}
	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.MaxAge(86400) // 1 day
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	maxUpload := cfg.MaxUpload
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	page := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"comma": func(n int) string { return humanize.Comma(int64(n)) },
		"time":  func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
	}).ParseFS(templateFS, "templates/index.html"))

	return &Server{
		registry:     cfg.Registry,
		metrics:      cfg.Metrics,
		sessionStore: sessionStore,
		limiter:      newLimiter(cfg.AnalyzeRPS),
		logger:       logger,
		page:         page,
		addr:         cfg.Addr,
		maxUpload:    maxUpload,
		ttl:          ttl,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(s.logger),
		recoverer(s.logger),
	)

	r.Get("/", s.handleIndex)
	r.Post("/upload", s.handleUpload)
	r.With(s.limiter.middleware(s.sessionKey, s.rejectLimited)).Post("/analyze", s.handleAnalyze)
	r.Get("/api/session", s.handleSession)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting web server", slog.String("addr", "http://"+ln.Addr().String()))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down web server...")
		return srv.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		s.sweepSessions(egctx)
		return nil
	})

	return eg.Wait()
}

// sweepSessions drops idle sessions until ctx is done.
func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(s.ttl / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.registry.Sweep(s.ttl); n > 0 {
				s.logger.Info("expired idle sessions", slog.Int("count", n))
			}
			s.limiter.sweep(s.ttl)
		}
	}
}
