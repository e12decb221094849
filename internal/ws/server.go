// Package ws exposes the collaboration rooms over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/auth"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/config"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/protocol"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/room"
)

// Server handles WebSocket connections for diagram rooms.
type Server struct {
	cfg      *config.Config
	rooms    *room.Registry
	resolver *auth.Resolver
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, rooms *room.Registry, resolver *auth.Resolver) *Server {
	return &Server{
		cfg:      cfg,
		rooms:    rooms,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients come from arbitrary origins
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request and runs the connection lifecycle.
// The identity is resolved before the upgrade; anonymous connects are
// accepted and only rejected once they try to edit.
func (s *Server) HandleWebSocket(c echo.Context) error {
	diagramID := c.Param("diagrama_id")
	if diagramID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "diagrama_id is required")
	}

	user := s.resolver.Identify(c.Request())

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	sess := newSession(uuid.New().String(), diagramID, user, conn)
	r := s.rooms.Join(diagramID, sess)

	sess.Send(protocol.ConexionEstablecidaMessage{
		BaseMessage: protocol.BaseMessage{Tipo: protocol.TypeConexionEstablecida},
		Mensaje:     "Conexión WebSocket exitosa",
	})

	conn.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(sess)
	go s.readPump(sess, r)

	log.Printf("Session %s joined diagram %s (user: %q)", sess.id, diagramID, user.UserID)
	return nil
}

// readPump reads messages until the connection drops, then cleans up.
func (s *Server) readPump(sess *session, r *room.Room) {
	defer func() {
		s.rooms.RemoveSessionEverywhere(sess.id)
		sess.closeSend()
		sess.conn.Close()
	}()

	sess.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error on session %s: %v", sess.id, err)
			}
			break
		}
		sess.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		s.handleMessage(sess, r, message)
	}
}

// writePump drains the session's send queue and keeps the connection alive
// with pings.
func (s *Server) writePump(sess *session) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()

	for {
		select {
		case message, ok := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := sess.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound message. Errors answer with an error
// message; they never close the connection.
func (s *Server) handleMessage(sess *session, r *room.Room, data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(sess, protocol.ErrMsgInvalidJSON)
		return
	}

	switch base.Tipo {
	case protocol.TypeCambioDiagrama:
		s.handleCambioDiagrama(sess, r, data)
	case protocol.TypeUsuarioEditando:
		s.handleUsuarioEditando(sess, r, data)
	case protocol.TypeSincronizarEstado:
		s.handleSincronizarEstado(sess, r)
	case protocol.TypePing:
		r.Pong(sess)
	default:
		s.sendError(sess, "Tipo de evento no reconocido: "+base.Tipo)
	}
}

func (s *Server) handleCambioDiagrama(sess *session, r *room.Room, data []byte) {
	var msg protocol.CambioDiagramaMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(sess, protocol.ErrMsgInvalidJSON)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.ApplyChange(ctx, sess, msg.Cambio)
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, room.ErrInvalidPayload):
		s.sendError(sess, protocol.ErrMsgInvalidChange)
	case errors.Is(err, room.ErrUnauthorized):
		s.sendError(sess, protocol.ErrMsgUnauthorized)
	case errors.Is(err, room.ErrPersistenceFailed):
		log.Printf("Change on diagram %s failed: %v", r.DiagramID(), err)
		s.sendError(sess, protocol.ErrMsgApplyFailed)
	default:
		log.Printf("Change on diagram %s failed: %v", r.DiagramID(), err)
		s.sendError(sess, protocol.ErrMsgInternal)
	}
}

func (s *Server) handleUsuarioEditando(sess *session, r *room.Room, data []byte) {
	var msg protocol.UsuarioEditandoMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(sess, protocol.ErrMsgInvalidJSON)
		return
	}
	r.SetEditingState(sess, msg.ElementoID, msg.Editando)
}

func (s *Server) handleSincronizarEstado(sess *session, r *room.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.SyncState(ctx, sess); err != nil {
		log.Printf("Sync on diagram %s failed: %v", r.DiagramID(), err)
		s.sendError(sess, protocol.ErrMsgSyncFailed)
	}
}

func (s *Server) sendError(sess *session, mensaje string) {
	sess.Send(protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{Tipo: protocol.TypeError},
		Mensaje:     mensaje,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}
