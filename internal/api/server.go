package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/bryanchriswhite/deskctl/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Version is reported by /api/health
var Version = "0.1.0"

// maxMessageSize bounds a single WebSocket command envelope
const maxMessageSize = 1 << 20

// maxConnInflight bounds the commands one WebSocket connection runs at
// once. Further messages are not read until a slot frees.
const maxConnInflight = 4

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(dispatcher *Dispatcher, m *metrics.Metrics) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		dispatcher: dispatcher,
		metrics:    m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Window queries
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/title/{title}", s.handleFindByTitle).Methods("GET")
	api.HandleFunc("/windows/role/{role}", s.handleFindByRole).Methods("GET")
	api.HandleFunc("/windows/value/{value}", s.handleFindByValue).Methods("GET")

	// Command envelope
	api.HandleFunc("/command", s.handleCommand).Methods("POST")
	api.HandleFunc("/commands", s.handleListCommands).Methods("GET")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the root handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until ctx is canceled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	log := logger.WithComponent("api")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, req Request) {
	rep := s.dispatcher.Dispatch(r.Context(), req)
	writeJSON(w, rep.Status, rep.Body)
}

// paramsOf encodes a single-field params object
func paramsOf(key, value string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{key: value})
	return data
}

// HTTP Handlers

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, Request{Command: "get_windows"})
}

func (s *Server) handleFindByTitle(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, Request{Command: "find_window_by_title", Params: paramsOf("title", mux.Vars(r)["title"])})
}

func (s *Server) handleFindByRole(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, Request{Command: "find_window_by_role", Params: paramsOf("role", mux.Vars(r)["role"])})
}

func (s *Server) handleFindByValue(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, Request{Command: "find_window_by_value", Params: paramsOf("value", mux.Vars(r)["value"])})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResult{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	s.reply(w, r, req)
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commands": s.dispatcher.Commands(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// handleWebSocket runs the command channel. Messages on one connection
// are dispatched concurrently, at most maxConnInflight at a time; replies
// are serialized by writeMu and echo the request id when one is given.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("websocket")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		writeMu  sync.Mutex
		inflight errgroup.Group
	)
	inflight.SetLimit(maxConnInflight)
	send := func(id json.RawMessage, body interface{}) {
		payload, err := withID(id, body)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode reply")
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
		}
	}

	log.Debug().Str("remote", r.RemoteAddr).Msg("Client connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("WebSocket read ended")
			}
			break
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			send(nil, ActionResult{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		inflight.Go(func() error {
			rep := s.dispatcher.Dispatch(ctx, req)
			send(req.ID, rep.Body)
			return nil
		})
	}

	cancel()
	_ = inflight.Wait()
	log.Debug().Str("remote", r.RemoteAddr).Msg("Client disconnected")
}

// withID encodes body, adding an "id" member when id is set
func withID(id json.RawMessage, body interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil || len(id) == 0 {
		return data, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["id"] = id
	return json.Marshal(fields)
}
