// Package gateway exposes the playout engine over HTTP: reconciled state and
// channel listings as JSON, command endpoints, health and metrics, and a
// websocket stream of live updates.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/c360/playout/config"
	"github.com/c360/playout/engine"
	"github.com/c360/playout/health"
	"github.com/c360/playout/metric"
	"github.com/c360/playout/notify"
)

// Server is the HTTP surface over one engine.
type Server struct {
	cfg      config.GatewayConfig
	engine   *engine.Engine
	notifier *notify.Notifier
	registry *metric.Registry
	logger   *slog.Logger

	httpSrv *http.Server
}

// New creates a gateway server. notifier and registry may be nil; the
// websocket and metrics endpoints are then disabled.
func New(cfg config.GatewayConfig, eng *engine.Engine, notifier *notify.Notifier, registry *metric.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		engine:   eng,
		notifier: notifier,
		registry: registry,
		logger:   logger.With("component", "gateway"),
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.registry.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/channels", s.handleChannels)
		r.Post("/reconnect", s.handleReconnectAll)
		r.Route("/channels/{channelID}", func(r chi.Router) {
			r.Post("/actions", s.handleTriggerAction)
			r.Post("/next", s.handleSetNext)
			r.Get("/shows/*", s.handleShowContent)
			r.Delete("/", s.handleRemoveChannel)
		})
	})

	if s.notifier != nil {
		r.Get("/ws", s.handleWS)
	}
	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Health()
	code := http.StatusOK
	if st.State == health.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, st)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, notify.SnapshotView(s.engine.Snapshot()))
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Channels())
}

func (s *Server) handleReconnectAll(w http.ResponseWriter, r *http.Request) {
	s.engine.ReconnectAll(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

type actionRequest struct {
	ActionPath string `json:"actionPath"`
}

func (s *Server) handleTriggerAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActionPath == "" {
		s.writeError(w, http.StatusBadRequest, "actionPath required")
		return
	}

	id, err := s.engine.TriggerAction(chi.URLParam(r, "channelID"), req.ActionPath)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]int64{"messageId": id})
}

type setNextRequest struct {
	LogicPath   string `json:"logicPath"`
	ElementPath string `json:"elementPath"`
	Carousel    string `json:"carousel"`
	Feed        string `json:"feed"`
}

func (s *Server) handleSetNext(w http.ResponseWriter, r *http.Request) {
	var req setNextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.LogicPath == "" || req.ElementPath == "" {
		s.writeError(w, http.StatusBadRequest, "logicPath and elementPath required")
		return
	}

	id, err := s.engine.SetNext(chi.URLParam(r, "channelID"),
		req.LogicPath, req.ElementPath, req.Carousel, req.Feed)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]int64{"messageId": id})
}

func (s *Server) handleShowContent(w http.ResponseWriter, r *http.Request) {
	showPath := "/" + chi.URLParam(r, "*")
	content, err := s.engine.FetchShowContent(r.Context(), chi.URLParam(r, "channelID"), showPath)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Disconnect(chi.URLParam(r, "channelID")); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
