// Package api serves the explorer over HTTP: JSON queries and commands plus a
// websocket stream of change events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-explorer/metrics"
	"github.com/ethereum-optimism/infra/op-explorer/orchestrator"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Explorer is the part of the orchestrator the API drives.
type Explorer interface {
	Status(ctx context.Context) (orchestrator.Status, error)
	Tree(ctx context.Context) (*orchestrator.NodeView, error)
	StateGroups(ctx context.Context) ([]orchestrator.GroupView, error)
	Build(ctx context.Context) error
	RunTests(ctx context.Context) error
	Select(ctx context.Context, path string) error
	ClearSelection(ctx context.Context) error
	Navigate(ctx context.Context, path string) error
	ExpandAll(ctx context.Context) error
	CollapseAll(ctx context.Context) error
	SetExpanded(ctx context.Context, path string, expanded bool) error
	ToggleStateGroup(ctx context.Context, state types.TestState) error
	SetAutoCover(ctx context.Context, enabled bool) error
}

// LogSource exposes the test log.
type LogSource interface {
	LogText() string
}

type Config struct {
	Log      log.Logger
	Explorer Explorer
	Logs     LogSource
	// Hub is created when nil. Pass one in when it must exist before the
	// explorer, e.g. as the orchestrator's notifier.
	Hub             *Hub
	AllowAllOrigins bool
	RequestTimeout  time.Duration
}

type Server struct {
	log      log.Logger
	explorer Explorer
	logs     LogSource
	hub      *Hub
	router   *mux.Router
	handler  http.Handler
	timeout  time.Duration

	server   *http.Server
	listener net.Listener
}

type pathRequest struct {
	Path string `json:"path"`
}

type expandRequest struct {
	Path     string `json:"path"`
	Expanded bool   `json:"expanded"`
}

type autoCoverRequest struct {
	Enabled bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type logResponse struct {
	Text string `json:"text"`
}

func NewServer(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	logger := cfg.Log.New("component", "api")
	if cfg.Hub == nil {
		cfg.Hub = NewHub(logger, cfg.AllowAllOrigins)
	}
	s := &Server{
		log:      logger,
		explorer: cfg.Explorer,
		logs:     cfg.Logs,
		hub:      cfg.Hub,
		router:   mux.NewRouter(),
		timeout:  cfg.RequestTimeout,
	}
	s.routes()

	s.handler = s.router
	if cfg.AllowAllOrigins {
		c := cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		})
		s.handler = c.Handler(s.router)
	}
	return s
}

func (s *Server) routes() {
	r := s.router.PathPrefix("/api/v1").Subrouter()
	r.Use(s.instrument)

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/tree", s.handleTree).Methods(http.MethodGet)
	r.HandleFunc("/groups", s.handleGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/{state}/toggle", s.handleToggleGroup).Methods(http.MethodPost)
	r.HandleFunc("/log", s.handleLog).Methods(http.MethodGet)

	r.HandleFunc("/build", s.command(s.explorer.Build)).Methods(http.MethodPost)
	r.HandleFunc("/run", s.command(s.explorer.RunTests)).Methods(http.MethodPost)
	r.HandleFunc("/expand-all", s.command(s.explorer.ExpandAll)).Methods(http.MethodPost)
	r.HandleFunc("/collapse-all", s.command(s.explorer.CollapseAll)).Methods(http.MethodPost)
	r.HandleFunc("/selection", s.handleSelect).Methods(http.MethodPut)
	r.HandleFunc("/selection", s.command(s.explorer.ClearSelection)).Methods(http.MethodDelete)
	r.HandleFunc("/navigate", s.handleNavigate).Methods(http.MethodPost)
	r.HandleFunc("/expanded", s.handleExpand).Methods(http.MethodPut)
	r.HandleFunc("/autocover", s.handleAutoCover).Methods(http.MethodPut)

	s.router.Handle("/api/v1/events", s.hub).Methods(http.MethodGet)
}

// Handler returns the CORS wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub is the change notifier feeding websocket clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("API server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("API server failed", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		metrics.RecordAPIRequest(route, rec.code)
		s.log.Debug("API request", "method", r.Method, "route", route, "code", rec.code, "duration", time.Since(start))
	})
}

func (s *Server) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response", "error", err)
	}
}

// statusCode maps explorer errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrBusy),
		errors.Is(err, orchestrator.ErrNoSelection),
		errors.Is(err, orchestrator.ErrNoSolution):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNotFound),
		errors.Is(err, orchestrator.ErrNoGroup):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrNotNavigable):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrStopped),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		s.log.Warn("API command failed", "err", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// respond answers a command with the status after the command ran.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()
	st, err := s.explorer.Status(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.ctx(r)
		defer cancel()
		s.respond(w, r, fn(ctx))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()
	view, err := s.explorer.Tree(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if view == nil {
		s.writeError(w, orchestrator.ErrNoSolution)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()
	groups, err := s.explorer.StateGroups(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if groups == nil {
		groups = []orchestrator.GroupView{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleToggleGroup(w http.ResponseWriter, r *http.Request) {
	state, err := types.ParseTestState(mux.Vars(r)["state"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	ctx, cancel := s.ctx(r)
	defer cancel()
	if err := s.explorer.ToggleStateGroup(ctx, state); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGroups(w, r)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, logResponse{})
		return
	}
	writeJSON(w, http.StatusOK, logResponse{Text: s.logs.LogText()})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := s.ctx(r)
	defer cancel()
	s.respond(w, r, s.explorer.Select(ctx, req.Path))
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := s.ctx(r)
	defer cancel()
	s.respond(w, r, s.explorer.Navigate(ctx, req.Path))
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := s.ctx(r)
	defer cancel()
	s.respond(w, r, s.explorer.SetExpanded(ctx, req.Path, req.Expanded))
}

func (s *Server) handleAutoCover(w http.ResponseWriter, r *http.Request) {
	var req autoCoverRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := s.ctx(r)
	defer cancel()
	s.respond(w, r, s.explorer.SetAutoCover(ctx, req.Enabled))
}
