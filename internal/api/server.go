package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/stream"
)

type Server struct {
	store    store.Store
	broker   Broker
	source   research.Source
	emitter  *stream.Emitter
	cfg      config.Config
	logger   *zap.Logger
	probes   map[string]Probe
	upgrader websocket.Upgrader
}

type Broker interface {
	Publish(event events.RunEvent)
	ActiveRuns() int
}

// Probe checks one optional dependency for /ready.
type Probe func(ctx context.Context) error

type ServerOption func(*Server)

func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithProbe(name string, probe Probe) ServerOption {
	return func(s *Server) {
		if probe != nil {
			s.probes[name] = probe
		}
	}
}

func NewServer(store store.Store, broker Broker, source research.Source, emitter *stream.Emitter, cfg config.Config, opts ...ServerOption) *Server {
	if emitter == nil {
		emitter = stream.NewEmitter()
	}
	server := &Server{
		store:   store,
		broker:  broker,
		source:  source,
		emitter: emitter,
		cfg:     cfg,
		logger:  zap.NewNop(),
		probes:  map[string]Probe{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(server)
	}
	return server
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/chat", s.chat)
	r.Get("/chat/ws", s.chatWebSocket)
	r.Get("/threads/{id}", s.getThread)
	r.Post("/runs/{id}/events", s.ingestEvent)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method == http.MethodPost && strings.HasSuffix(cleanPath, "/events") {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/health" || cleanPath == "/ready" || cleanPath == "/metrics") {
		return true
	}
	if method == http.MethodOptions && strings.HasPrefix(cleanPath, "/chat") {
		return true
	}
	return false
}

type healthResponse struct {
	Status        string `json:"status"`
	ActiveThreads int64  `json:"active_threads"`
	ActiveRuns    int    `json:"active_runs"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.CountThreads(r.Context())
	if err != nil {
		s.logger.Warn("failed to count threads", zap.Error(err))
	}
	response := healthResponse{Status: "ok", ActiveThreads: threads}
	if s.broker != nil {
		response.ActiveRuns = s.broker.ActiveRuns()
	}
	writeJSONStatus(w, response, http.StatusOK)
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if _, err := s.store.CountThreads(ctx); err != nil {
		subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["store"] = subsystemStatus{Status: "ok"}
	}

	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.probes[name](ctx); err != nil {
			subsystems[name] = subsystemStatus{Status: "error", Error: err.Error()}
			overall = http.StatusServiceUnavailable
			continue
		}
		subsystems[name] = subsystemStatus{Status: "ok"}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
