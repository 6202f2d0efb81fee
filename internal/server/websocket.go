package server

import (
	"fmt"
	"net/http"
	"time"

	"cancer-predictor/internal/common"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteWait = 10 * time.Second

// handleWebSocket streams predictions: every text frame is one feature object and
// gets exactly one PredictResponse back, in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	session := uuid.NewString()
	s.track(conn)
	defer s.untrack(conn)

	if s.opts.Metrics != nil {
		gauge := s.opts.Metrics.WSConnections()
		gauge.Add(1)
		defer gauge.Add(-1)
	}
	log.Info().Str("session", session).Str("remote", r.RemoteAddr).Msg("websocket session opened")
	defer log.Info().Str("session", session).Msg("websocket session closed")

	if err := s.serveSession(conn, session); err != nil {
		log.Debug().Err(err).Str("session", session).Msg("websocket session ended")
	}
}

func (s *Server) serveSession(conn *websocket.Conn, session string) error {
	ping := s.opts.WSPingInterval
	pongWait := 2 * ping

	conn.SetReadLimit(s.opts.MaxBodyBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(ping)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// WriteControl may run concurrently with the reply writer.
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					log.Debug().Err(err).Str("session", session).Msg("websocket ping failed")
					return
				}
			}
		}
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("session", session).Msg("websocket closed unexpectedly")
			}
			return fmt.Errorf("read message failed: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if s.opts.Metrics != nil {
			s.opts.Metrics.WSMessagesInc()
		}

		var status int
		var resp PredictResponse
		if mt != websocket.TextMessage {
			status, resp = http.StatusBadRequest, PredictResponse{Error: common.MsgInvalidJSON}
		} else {
			status, resp = s.predict(msg)
		}
		resp.Status = status

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			return fmt.Errorf("write reply failed: %w", err)
		}
	}
}

func (s *Server) track(conn *websocket.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
	conn.Close()
}

// closeConns tells every open session the server is going away.
func (s *Server) closeConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range s.conns {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
}
