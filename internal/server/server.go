// Package server exposes the prediction engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"cancer-predictor/internal/common"
	"cancer-predictor/internal/metrics"
	"cancer-predictor/internal/ml"
	"cancer-predictor/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const defaultPingInterval = 30 * time.Second

// Metrics is what the server records about itself and hands to the engine.
type Metrics interface {
	ml.MetricsInterface
	ml.DriftMetrics
	HTTPRequestObserve(route, method string, code int, seconds float64)
	WSConnections() metrics.Gauge
	WSMessagesInc()
}

// AuditLog is the prediction history backing /audit.
type AuditLog interface {
	ml.Auditor
	Recent(limit int) ([]storage.PredictionRecord, error)
	GetPredictionsInRange(start, end time.Time) ([]storage.PredictionRecord, error)
	Count() (int, error)
}

// Options configures a Server. Store is required; everything else is optional.
type Options struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxBodyBytes   int64
	WSEnabled      bool
	WSPingInterval time.Duration
	AuditLimit     int
	DriftWindow    int
	DriftThreshold float64
	Store          *ml.Store
	Metrics        Metrics
	Gatherer       prometheus.Gatherer
	Audit          AuditLog
	Now            func() time.Time
}

func (o Options) driftEnabled() bool { return o.DriftWindow > 0 }

// Server serves predictions once the artifact store is ready. Until then prediction
// routes answer 503.
type Server struct {
	opts   Options
	router chi.Router
	http   *http.Server

	engineMu sync.Mutex
	engine   atomic.Pointer[ml.Engine]
	drift    atomic.Pointer[ml.DriftMonitor]

	upgrader websocket.Upgrader
	connsMu  sync.Mutex
	conns    map[*websocket.Conn]struct{}
}

// New builds the router. It does not start listening.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: artifact store is required")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = common.DefaultMaxBodyBytes
	}
	if opts.AuditLimit <= 0 {
		opts.AuditLimit = common.DefaultAuditLimit
	}
	if opts.WSPingInterval <= 0 {
		opts.WSPingInterval = defaultPingInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(recoverJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, common.MsgNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, common.MsgMethodNotAllowed)
	})

	r.Post("/predict", s.handlePredict)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Get("/audit", s.handleAudit)
	r.Get("/drift", s.handleDrift)
	r.Post("/drift/reset", s.handleDriftReset)
	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.opts.WSEnabled {
		r.Get("/ws/predict", s.handleWebSocket)
	}
	return r
}

// Handler returns the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.opts.Addr).
		Bool("ready", s.opts.Store.Ready()).
		Bool("websocket", s.opts.WSEnabled).
		Bool("audit", s.opts.Audit != nil).
		Bool("drift", s.opts.driftEnabled()).
		Int("drift_window", s.opts.DriftWindow).
		Msg("starting prediction server")
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests, closes open WebSocket sessions and waits for
// in-flight HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeConns()
	return s.http.Shutdown(ctx)
}

// currentEngine binds an engine to the store's artifacts the first time they are
// available.
func (s *Server) currentEngine() (*ml.Engine, error) {
	if e := s.engine.Load(); e != nil {
		return e, nil
	}
	artifacts, err := s.opts.Store.Artifacts()
	if err != nil {
		return nil, err
	}

	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	if e := s.engine.Load(); e != nil {
		return e, nil
	}

	engineOpts := ml.EngineOptions{Now: s.opts.Now}
	if s.opts.Metrics != nil {
		engineOpts.Metrics = s.opts.Metrics
	}
	if s.opts.Audit != nil {
		engineOpts.Auditor = s.opts.Audit
	}
	monitor := s.newDriftMonitor(artifacts)
	if monitor != nil {
		engineOpts.Drift = monitor
	}
	e, err := ml.NewEngine(artifacts, s.opts.Store.Registry(), engineOpts)
	if err != nil {
		return nil, err
	}
	if monitor != nil {
		s.drift.Store(monitor)
	}
	s.engine.Store(e)
	return e, nil
}

// newDriftMonitor returns nil when monitoring is off or the scaler carries no
// usable baseline.
func (s *Server) newDriftMonitor(artifacts *ml.Artifacts) *ml.DriftMonitor {
	if !s.opts.driftEnabled() {
		return nil
	}
	baseline, ok := artifacts.Baseline()
	if !ok {
		log.Warn().Msg("scaler has no baseline, input drift monitoring disabled")
		return nil
	}
	cfg := ml.DriftConfig{Window: s.opts.DriftWindow, Threshold: s.opts.DriftThreshold}
	if s.opts.Metrics != nil {
		cfg.Metrics = s.opts.Metrics
	}
	return ml.NewDriftMonitor(artifacts.FeatureOrder(), baseline, cfg)
}
