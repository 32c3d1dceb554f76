package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	service "github.com/okian/hoops/internal/app"
	"github.com/okian/hoops/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Live message types.
const (
	msgHello    = "hello"
	msgSnapshot = "snapshot"
	msgError    = "error"
	msgRefresh  = "refresh"
)

type liveMessage struct {
	Type      string         `json:"type"`
	DisplayID string         `json:"display_id,omitempty"`
	Frame     *service.Frame `json:"frame,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(s.allowedOrigins))
	for _, o := range s.allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if _, ok := allowed["*"]; ok {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// handleLive handles GET /games/{id}/live. The socket receives a hello with
// the display id, then a snapshot frame after every refresh. Controllers
// opened with that display id as opener signal it on commit.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	if _, err := s.deps.GetGame(r.Context(), gameID); err != nil {
		writeFailure(w, err)
		return
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logger.Get().Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	display, err := s.deps.OpenDisplay(ctx, gameID)
	if err != nil {
		_ = conn.WriteJSON(liveMessage{Type: msgError, Error: err.Error()})
		_ = conn.Close()
		return
	}
	defer display.Close()

	go s.readPump(ctx, cancel, conn, display)
	s.writePump(ctx, conn, display)
}

// readPump handles refresh requests and notices when the peer goes away.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, d *service.Display) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Get().Debug(ctx, "live socket closed", logger.String("display_id", d.ID()), logger.Error(err))
			}
			return
		}
		if msg.Type == msgRefresh {
			d.Refresh()
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, d *service.Display) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(liveMessage{Type: msgHello, DisplayID: d.ID()}); err != nil {
		return
	}
	frames := d.Frames()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case f, ok := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg := liveMessage{Type: msgSnapshot, Frame: &f}
			if f.Error != "" {
				msg.Type = msgError
				msg.Error = f.Error
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
