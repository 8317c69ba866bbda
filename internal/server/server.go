package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"task-file-drop/internal/logging"
	"task-file-drop/internal/store"
	"task-file-drop/internal/uploads"
)

const defaultMultipartMemory = 32 << 20

type Config struct {
	Addr string // e.g. ":5000"
	// MaxUploadBytes caps the whole request body; zero means no cap.
	MaxUploadBytes int64
	// MultipartMemory is how much of a multipart body is held in memory
	// before parts spill to temp files.
	MultipartMemory int64
	CORSOrigin      string
	Version         string
}

// Deps are the collaborators built by the process entry point.
type Deps struct {
	Uploads *uploads.Service
	// Checks are the components reported by /health and /ready, by name.
	Checks  map[string]store.Pinger
	Logger  *logging.Logger
	Metrics *Metrics
}

type Server struct {
	cfg        Config
	uploads    *uploads.Service
	checks     map[string]store.Pinger
	log        *logging.Logger
	metrics    *Metrics
	started    time.Time
	httpServer *http.Server
}

func New(cfg Config, deps Deps) *Server {
	if cfg.MultipartMemory <= 0 {
		cfg.MultipartMemory = defaultMultipartMemory
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	s := &Server{
		cfg:     cfg,
		uploads: deps.Uploads,
		checks:  deps.Checks,
		log:     deps.Logger,
		metrics: deps.Metrics,
		started: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// routes wires middleware: requestID -> access log -> security headers ->
// CORS -> gzip -> router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		requestIDMiddleware,
		s.accessLogMiddleware,
		securityHeadersMiddleware,
		corsMiddleware(s.cfg.CORSOrigin),
		compressionMiddleware,
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusNotFound, "route not found", codeNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusMethodNotAllowed, "method not allowed", codeBadRequest)
	})

	r.Get("/", s.handleRoot)
	r.Post("/uploadfiles", s.handleUpload)
	r.Get("/uploadfiles/{taskId}", s.handleFiles)

	r.Get("/health", s.HandleHealth)
	r.Get("/ready", s.HandleReady)
	r.Get("/live", s.HandleLive)
	r.Get("/metrics", s.metrics.prometheusHandler(s.cfg.Version, s.started, s.circuitStats))

	return r
}

// circuitReporter is implemented by health components that guard the store.
type circuitReporter interface {
	Stats() store.CircuitBreakerStats
}

// circuitStats collects breaker counters from the registered health checks.
func (s *Server) circuitStats() map[string]store.CircuitBreakerStats {
	out := make(map[string]store.CircuitBreakerStats)
	for name, c := range s.checks {
		if cr, ok := c.(circuitReporter); ok {
			out[name] = cr.Stats()
		}
	}
	return out
}

// Handler exposes the full middleware-wrapped router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info(context.Background(), "server listening", logging.Fields{"addr": ln.Addr().String()})
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
