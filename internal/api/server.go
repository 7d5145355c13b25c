// Package api serves the workspace over HTTP: editing commands, debug
// sessions, stored versions and templates, and the live event stream.
package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/config"
	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/metrics"
	"github.com/AaronLay10/FlowEngine/internal/version"
	"github.com/AaronLay10/FlowEngine/internal/workspace"
)

// Server is the HTTP front end of one workspace.
type Server struct {
	ws      *workspace.Workspace
	bus     *events.Bus
	metrics *metrics.Collector
	auth    *Auth
	cfg     config.ServerConfig
	log     *zap.Logger
	router  *mux.Router
	checks  map[string]CheckFunc

	// runCtx outlives requests so background debug runs survive the reply.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

func WithConfig(cfg config.ServerConfig) Option {
	return func(s *Server) { s.cfg = cfg }
}

func WithAuth(cfg config.AuthConfig) Option {
	return func(s *Server) { s.auth = NewAuth(cfg) }
}

// WithMetrics serves /metrics and records every request.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds a server around ws and the bus its events go to.
func New(ws *workspace.Workspace, bus *events.Bus, opts ...Option) *Server {
	s := &Server{
		ws:   ws,
		bus:  bus,
		auth: NewAuth(config.AuthConfig{}),
		cfg:  config.Default().Server,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("component", "api"))
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	s.router = mux.NewRouter()
	s.router.Use(s.instrument)
	s.registerRoutes()
	if s.metrics != nil {
		s.metrics.GaugeFunc("", "ws_clients", "Number of active WebSocket client connections.", func() float64 {
			return float64(s.bus.SubscriberCount())
		})
		s.metrics.GaugeFunc("", "events_total", "Total number of events emitted since startup.", func() float64 {
			return float64(s.bus.TotalCount())
		})
	}
	return s
}

// Handler returns the routed handler, wrapped for CORS when origins are
// configured.
func (s *Server) Handler() http.Handler {
	if len(s.cfg.AllowedOrigins) == 0 {
		return s.router
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	})
	return c.Handler(s.router)
}

func (s *Server) registerRoutes() {
	r := s.router
	view, edit := s.auth.RequireViewer, s.auth.RequireEditor

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/events", view(s.eventsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", view(s.wsEventsHandler)).Methods(http.MethodGet)

	a := r.PathPrefix("/api").Subrouter()

	// Document.
	a.HandleFunc("/workflow", view(s.exportHandler)).Methods(http.MethodGet)
	a.HandleFunc("/workflow", edit(s.importHandler)).Methods(http.MethodPut)
	a.HandleFunc("/workflow/save", edit(s.saveHandler)).Methods(http.MethodPost)
	a.HandleFunc("/workflow/reload", edit(s.reloadHandler)).Methods(http.MethodPost)
	a.HandleFunc("/workflow/validation", view(s.validationHandler)).Methods(http.MethodGet)
	a.HandleFunc("/node-types", view(s.nodeTypesHandler)).Methods(http.MethodGet)

	// Nodes and edges.
	a.HandleFunc("/nodes", edit(s.addNodeHandler)).Methods(http.MethodPost)
	a.HandleFunc("/nodes/{id}", edit(s.updateNodeHandler)).Methods(http.MethodPatch)
	a.HandleFunc("/nodes/{id}", edit(s.deleteNodeHandler)).Methods(http.MethodDelete)
	a.HandleFunc("/nodes/{id}/position", edit(s.moveNodeHandler)).Methods(http.MethodPut)
	a.HandleFunc("/edges", edit(s.connectHandler)).Methods(http.MethodPost)
	a.HandleFunc("/edges/paths", view(s.edgePathsHandler)).Methods(http.MethodGet)
	a.HandleFunc("/edges/{id}", edit(s.disconnectHandler)).Methods(http.MethodDelete)
	a.HandleFunc("/hit", view(s.hitHandler)).Methods(http.MethodGet)

	// Layout and viewport.
	a.HandleFunc("/layout", edit(s.layoutHandler)).Methods(http.MethodPost)
	a.HandleFunc("/align", edit(s.alignHandler)).Methods(http.MethodPost)
	a.HandleFunc("/distribute", edit(s.distributeHandler)).Methods(http.MethodPost)
	a.HandleFunc("/viewport", view(s.viewportHandler)).Methods(http.MethodGet)

	// History.
	a.HandleFunc("/history", view(s.historyHandler)).Methods(http.MethodGet)
	a.HandleFunc("/undo", edit(s.undoHandler)).Methods(http.MethodPost)
	a.HandleFunc("/redo", edit(s.redoHandler)).Methods(http.MethodPost)

	// Selection and clipboard.
	a.HandleFunc("/selection", view(s.selectionHandler)).Methods(http.MethodGet)
	a.HandleFunc("/selection", edit(s.selectHandler)).Methods(http.MethodPost)
	a.HandleFunc("/selection/all", edit(s.selectAllHandler)).Methods(http.MethodPost)
	a.HandleFunc("/selection/area", edit(s.selectAreaHandler)).Methods(http.MethodPost)
	a.HandleFunc("/selection/clear", edit(s.clearSelectionHandler)).Methods(http.MethodPost)
	a.HandleFunc("/selection/delete", edit(s.deleteSelectedHandler)).Methods(http.MethodPost)
	a.HandleFunc("/selection/duplicate", edit(s.duplicateHandler)).Methods(http.MethodPost)
	a.HandleFunc("/clipboard", view(s.clipboardHandler)).Methods(http.MethodGet)
	a.HandleFunc("/clipboard/copy", edit(s.copyHandler)).Methods(http.MethodPost)
	a.HandleFunc("/clipboard/paste", edit(s.pasteHandler)).Methods(http.MethodPost)

	// Groups.
	a.HandleFunc("/groups", edit(s.createGroupHandler)).Methods(http.MethodPost)
	a.HandleFunc("/groups/{id}", edit(s.updateGroupHandler)).Methods(http.MethodPatch)
	a.HandleFunc("/groups/{id}", edit(s.dissolveGroupHandler)).Methods(http.MethodDelete)
	a.HandleFunc("/groups/{id}/add", edit(s.addToGroupHandler)).Methods(http.MethodPost)
	a.HandleFunc("/groups/{id}/remove", edit(s.removeFromGroupHandler)).Methods(http.MethodPost)
	a.HandleFunc("/groups/{id}/fit", edit(s.fitGroupHandler)).Methods(http.MethodPost)
	a.HandleFunc("/groups/{id}/toggle", edit(s.toggleGroupHandler)).Methods(http.MethodPost)

	// Annotations.
	a.HandleFunc("/annotations", edit(s.addAnnotationHandler)).Methods(http.MethodPost)
	a.HandleFunc("/annotations/{id}", edit(s.updateAnnotationHandler)).Methods(http.MethodPatch)
	a.HandleFunc("/annotations/{id}", edit(s.deleteAnnotationHandler)).Methods(http.MethodDelete)
	a.HandleFunc("/annotations/{id}/position", edit(s.moveAnnotationHandler)).Methods(http.MethodPut)
	a.HandleFunc("/annotations/{id}/size", edit(s.resizeAnnotationHandler)).Methods(http.MethodPut)

	// Debugging.
	a.HandleFunc("/debug/state", view(s.debugStateHandler)).Methods(http.MethodGet)
	a.HandleFunc("/debug/start", edit(s.debugStartHandler)).Methods(http.MethodPost)
	a.HandleFunc("/debug/step", edit(s.debugStepHandler)).Methods(http.MethodPost)
	a.HandleFunc("/debug/continue", edit(s.debugContinueHandler)).Methods(http.MethodPost)
	a.HandleFunc("/debug/pause", edit(s.debugPauseHandler)).Methods(http.MethodPost)
	a.HandleFunc("/debug/stop", edit(s.debugStopHandler)).Methods(http.MethodPost)
	a.HandleFunc("/debug/breakpoints/{nodeId}", edit(s.setBreakpointHandler)).Methods(http.MethodPut)
	a.HandleFunc("/debug/breakpoints/{nodeId}", edit(s.removeBreakpointHandler)).Methods(http.MethodDelete)
	a.HandleFunc("/debug/breakpoints/{nodeId}/toggle", edit(s.toggleBreakpointHandler)).Methods(http.MethodPost)

	// Stored versions, templates and variables.
	a.HandleFunc("/versions", view(s.listVersionsHandler)).Methods(http.MethodGet)
	a.HandleFunc("/versions", edit(s.commitVersionHandler)).Methods(http.MethodPost)
	a.HandleFunc("/versions/compare", view(s.compareVersionsHandler)).Methods(http.MethodGet)
	a.HandleFunc("/versions/{id}/restore", edit(s.restoreVersionHandler)).Methods(http.MethodPost)
	a.HandleFunc("/templates", view(s.listTemplatesHandler)).Methods(http.MethodGet)
	a.HandleFunc("/templates", edit(s.saveTemplateHandler)).Methods(http.MethodPost)
	a.HandleFunc("/templates/{id}/apply", edit(s.applyTemplateHandler)).Methods(http.MethodPost)
	a.HandleFunc("/variables", view(s.listVariablesHandler)).Methods(http.MethodGet)
	a.HandleFunc("/variables", edit(s.saveVariableHandler)).Methods(http.MethodPut)
	a.HandleFunc("/variables/{id}", edit(s.deleteVariableHandler)).Methods(http.MethodDelete)
}

type HealthResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	Version    string `json:"version"`
	WorkflowID string `json:"workflow_id"`
	Hostname   string `json:"hostname"`
	Timestamp  string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Service:    "flowengine",
		Version:    version.Version,
		WorkflowID: s.ws.ID(),
		Hostname:   host,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// eventsHandler returns recent bus events; ?n= limits the count.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.bus.RecentEvents(n))
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// instrument records request counts and durations by route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		s.metrics.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully. Websocket
// clients are disconnected and background debug runs are stopped.
func (s *Server) Run(ctx context.Context) error {
	tlsCfg, err := LoadTLSConfig(s.cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		TLSConfig:    tlsCfg,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API listening", zap.String("addr", s.cfg.Addr), zap.Bool("tls", tlsCfg != nil), zap.Bool("auth", s.auth.Enabled()))
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		s.stopRuns()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.bus.CloseAllSubscribers()
	s.stopRuns()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func (s *Server) stopRuns() {
	s.cancelRun()
	s.ws.StopDebug()
	s.runs.Wait()
}
