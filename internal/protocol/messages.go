// Package protocol defines the WebSocket message protocol between editor
// clients and the collaboration server. Field names and `tipo` values are
// fixed by the wire contract the frontend already speaks.
package protocol

import (
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/diagram"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
)

// Message types from client to server. TypeUsuarioEditando also flows back
// out to the other members of the room.
const (
	TypeCambioDiagrama    = "cambio_diagrama"
	TypeUsuarioEditando   = "usuario_editando"
	TypeSincronizarEstado = "sincronizar_estado"
	TypePing              = "ping"
)

// Message types from server to client.
const (
	TypeConexionEstablecida = "conexion_establecida"
	TypeCambioConfirmado    = "cambio_confirmado"
	TypeCambioRecibido      = "cambio_recibido"
	TypeEstadoSincronizado  = "estado_sincronizado"
	TypeUsuarioDesconectado = "usuario_desconectado"
	TypePong                = "pong"
	TypeError               = "error"
)

// BaseMessage carries the discriminator shared by all messages.
type BaseMessage struct {
	Tipo string `json:"tipo"`
}

// CambioDiagramaMessage asks the room to apply a structural change.
type CambioDiagramaMessage struct {
	BaseMessage
	Cambio domain.ChangeDescriptor `json:"cambio"`
}

// UsuarioEditandoMessage signals that the sender started or stopped editing
// an element. Ephemeral: never persisted, never replayed on reconnect.
type UsuarioEditandoMessage struct {
	BaseMessage
	ElementoID string `json:"elemento_id"`
	Editando   bool   `json:"editando"`
}

// ConexionEstablecidaMessage greets a client right after the upgrade.
type ConexionEstablecidaMessage struct {
	BaseMessage
	Mensaje string `json:"mensaje"`
}

// CambioConfirmadoMessage confirms an applied change to its author only.
type CambioConfirmadoMessage struct {
	BaseMessage
	CambioID  string `json:"cambio_id"`
	Timestamp string `json:"timestamp"`
}

// CambioRecibidoMessage fans an applied change out to every member except
// its author.
type CambioRecibidoMessage struct {
	BaseMessage
	UsuarioID     string                  `json:"usuario_id"`
	UsuarioNombre string                  `json:"usuario_nombre"`
	Cambio        domain.ChangeDescriptor `json:"cambio"`
	CambioID      string                  `json:"cambio_id"`
	Timestamp     string                  `json:"timestamp"`
}

// UsuarioEditandoBroadcast relays an editing-state signal to the other
// members of the room.
type UsuarioEditandoBroadcast struct {
	BaseMessage
	ElementoID    string `json:"elemento_id"`
	UsuarioID     string `json:"usuario_id"`
	UsuarioNombre string `json:"usuario_nombre"`
	Editando      bool   `json:"editando"`
}

// EstadoSincronizadoMessage answers a sync request with the full structure
// and the presence list. Sent to the requester only.
type EstadoSincronizadoMessage struct {
	BaseMessage
	Estructura         *diagram.Structure     `json:"estructura"`
	UsuariosConectados []domain.ConnectedUser `json:"usuarios_conectados"`
}

// UsuarioDesconectadoMessage tells the remaining members that a user left.
type UsuarioDesconectadoMessage struct {
	BaseMessage
	UsuarioID          string                 `json:"usuario_id"`
	UsuarioNombre      string                 `json:"usuario_nombre"`
	UsuariosConectados []domain.ConnectedUser `json:"usuarios_conectados"`
}

// PongMessage answers a ping. Liveness only, no state change.
type PongMessage struct {
	BaseMessage
	Timestamp string `json:"timestamp"`
}

// ErrorMessage reports a recoverable error to the sender. No error closes
// the connection.
type ErrorMessage struct {
	BaseMessage
	Mensaje   string `json:"mensaje"`
	Timestamp string `json:"timestamp"`
}

// Error texts the frontend matches on.
const (
	ErrMsgInvalidJSON   = "Formato JSON inválido"
	ErrMsgInvalidChange = "Estructura de cambio inválida"
	ErrMsgUnauthorized  = "No autorizado para editar este diagrama"
	ErrMsgApplyFailed   = "No se pudo aplicar el cambio al diagrama"
	ErrMsgSyncFailed    = "Error sincronizando estado"
	ErrMsgInternal      = "Error interno del servidor"
)
