// Package proxy relays a client's DevTools websocket to the browser of a running capture.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CaptureLookup resolves a capture by ID
type CaptureLookup interface {
	GetCapture(id string) (*models.Capture, error)
}

type Server struct {
	captures    CaptureLookup
	logger      *zap.Logger
	dialTimeout time.Duration
}

func NewServer(captures CaptureLookup, logger *zap.Logger) *Server {
	return &Server{
		captures:    captures,
		logger:      logger.Named("proxy"),
		dialTimeout: 10 * time.Second,
	}
}

// HandleDebugConnection proxies CDP traffic until either side hangs up. Only
// captures whose browser runs in a container expose an endpoint.
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request, captureID string) {
	capture, err := s.captures.GetCapture(captureID)
	if err != nil {
		http.Error(w, "Capture not found", http.StatusNotFound)
		return
	}

	if capture.State.Terminal() {
		http.Error(w, "Capture is not running", http.StatusConflict)
		return
	}
	if capture.ConnectURL == "" {
		http.Error(w, "Capture browser has no debug endpoint", http.StatusConflict)
		return
	}

	logger := s.logger.With(zap.String("capture_id", captureID))

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	defer cancel()

	chromeConn, _, err := websocket.DefaultDialer.DialContext(ctx, capture.ConnectURL, nil)
	if err != nil {
		logger.Error("failed to connect to browser", zap.String("url", capture.ConnectURL), zap.Error(err))
		clientConn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Error connecting: %v", err)))
		return
	}
	defer chromeConn.Close()

	logger.Info("debug client attached")

	errChan := make(chan error, 2)
	go func() {
		errChan <- s.relay(clientConn, chromeConn, "client->browser")
	}()
	go func() {
		errChan <- s.relay(chromeConn, clientConn, "browser->client")
	}()

	err = <-errChan
	var closeErr *websocket.CloseError
	if err != nil && !errors.As(err, &closeErr) {
		logger.Warn("debug proxy stopped", zap.Error(err))
	}

	logger.Info("debug client detached")
}

func (s *Server) relay(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket closed", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			return err
		}
	}
}
