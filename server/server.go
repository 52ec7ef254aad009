// Package server exposes dossier runs over a WebSocket.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/dossier/pkg/dossier"
	"github.com/xhad/dossier/pkg/logging"
)

// Message types.
const (
	TypeRun    = "run"
	TypeStatus = "status"
	TypeResult = "result"
	TypeError  = "error"
)

// CodeBadRequest is sent for messages the server cannot act on.
const CodeBadRequest = "bad_request"

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// Runner builds one dossier and reports progress through onStatus.
type Runner interface {
	RunWithStatus(ctx context.Context, inn string, onStatus func(string)) (*dossier.Result, *dossier.ErrorPayload)
}

type WSServer struct {
	runner   Runner
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSServer(runner Runner, logger *zap.Logger) *WSServer {
	return &WSServer{
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the API is meant to sit behind an authenticating proxy
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.OrNop(logger),
	}
}

// Handler serves /ws and /health.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// conn serialises writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("server: websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	// runs stop when the client goes away
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{ws: ws}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("server: read failed", zap.Error(err))
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(c, &dossier.ErrorPayload{Code: CodeBadRequest, Message: "malformed message"})
			continue
		}
		if msg.Type != TypeRun {
			s.sendError(c, &dossier.ErrorPayload{Code: CodeBadRequest, Message: "unknown message type " + msg.Type})
			continue
		}

		wg.Add(1)
		go func(inn string) {
			defer wg.Done()
			s.handleRun(ctx, c, inn)
		}(msg.Content)
	}
}

func (s *WSServer) handleRun(ctx context.Context, c *conn, inn string) {
	log := s.logger.With(zap.String("inn", inn))
	log.Info("server: run requested")

	result, payload := s.runner.RunWithStatus(ctx, inn, func(status string) {
		s.send(c, Message{Type: TypeStatus, Content: status})
	})
	if payload != nil {
		log.Warn("server: run failed", zap.String("code", payload.Code), zap.String("message", payload.Message))
		s.sendError(c, payload)
		return
	}
	log.Info("server: run complete", zap.String("report", result.ReportPath))
	s.send(c, Message{Type: TypeResult, Content: result.Report, Data: result})
}

func (s *WSServer) sendError(c *conn, payload *dossier.ErrorPayload) {
	s.send(c, Message{Type: TypeError, Content: payload.Message, Data: payload})
}

func (s *WSServer) send(c *conn, msg Message) {
	if err := c.send(msg); err != nil {
		s.logger.Debug("server: send failed", zap.String("type", msg.Type), zap.Error(err))
	}
}
