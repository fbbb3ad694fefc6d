// internal/control/server.go

// Package control is the inbound operator surface: a small HTTP server
// through which a companion UI can hand-feed a one-time code (routed through
// the exact same injection path as automatic polling) and watch flow
// progress over a websocket.
package control

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/api/schemas"
)

const apiKeyHeader = "X-API-Key"

// actionInputAuthCode is the manual code-entry action.
const actionInputAuthCode = "inputAuthCode"

// CodeSink receives manually supplied codes.
type CodeSink interface {
	InputCode(ctx context.Context, code string) error
}

// Server is the control surface.
type Server struct {
	apiKey   string
	sink     CodeSink
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan schemas.FlowStatus]struct{}
}

// New creates a Server. An empty apiKey disables authentication; the
// deployment decides whether that is acceptable on its network.
func New(apiKey string, sink CodeSink, logger *zap.Logger) *Server {
	return &Server{
		apiKey: apiKey,
		sink:   sink,
		logger: logger.Named("control"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The companion UI is served from an extension origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[chan schemas.FlowStatus]struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /control", s.handleControl)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Broadcast forwards a flow status event to every connected subscriber.
// Slow subscribers drop events rather than stall the flow.
func (s *Server) Broadcast(status schemas.FlowStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// ListenAndServe runs the server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Control server listening.", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Control server shutdown was not clean.", zap.Error(err))
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type controlRequest struct {
	Action string `json:"action"`
	Code   string `json:"code"`
}

type controlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, controlResponse{Error: "invalid api key"})
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, controlResponse{Error: "malformed request"})
		return
	}

	switch req.Action {
	case actionInputAuthCode:
		if req.Code == "" {
			writeJSON(w, http.StatusBadRequest, controlResponse{Error: "empty code"})
			return
		}
		s.logger.Info("Manual code entry requested.")
		if err := s.sink.InputCode(r.Context(), req.Code); err != nil {
			s.logger.Warn("Manual code entry failed.", zap.Error(err))
			writeJSON(w, http.StatusOK, controlResponse{Success: false, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, controlResponse{Success: true})
	default:
		writeJSON(w, http.StatusBadRequest, controlResponse{Error: "unknown action"})
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed.", zap.Error(err))
		return
	}

	ch := make(chan schemas.FlowStatus, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		conn.Close()
	}()

	// Reader goroutine only watches for the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case status := <-ch:
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		}
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.apiKey == "" {
		return true
	}
	return r.Header.Get(apiKeyHeader) == s.apiKey
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
