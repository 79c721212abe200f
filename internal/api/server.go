package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bryanchriswhite/FocusWatcher/internal/config"
	"github.com/bryanchriswhite/FocusWatcher/internal/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server represents the read-only status API
type Server struct {
	router     *mux.Router
	tracker    *Tracker
	configMgr  *config.Manager
	upgrader   websocket.Upgrader
	httpServer *http.Server
	version    string
}

// NewServer creates a new API server. configMgr may be nil.
func NewServer(tracker *Tracker, configMgr *config.Manager, version string) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		tracker:   tracker,
		configMgr: configMgr,
		version:   version,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local status only
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/window/current", s.handleGetCurrentWindow).Methods("GET")
	api.HandleFunc("/window/stream", s.handleWindowStream)
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.WithComponent("api").Info().Str("addr", addr).Msg("Status API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and ends open streams
func (s *Server) Shutdown(ctx context.Context) error {
	s.tracker.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": s.version,
	})
}

func (s *Server) handleGetCurrentWindow(w http.ResponseWriter, r *http.Request) {
	current, ok := s.tracker.Current()
	if !ok {
		http.Error(w, "No window reported yet", http.StatusNotFound)
		return
	}
	writeJSON(w, current)
}

func (s *Server) handleWindowStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.tracker.Subscribe()
	defer s.tracker.Unsubscribe(updates)

	if current, ok := s.tracker.Current(); ok {
		if err := conn.WriteJSON(current); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
	}

	for status := range updates {
		if err := conn.WriteJSON(status); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "No configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, s.configMgr.Get().Document())
}
