// Package room implements per-diagram collaboration rooms and their registry.
// A room owns the membership set and the in-memory mirror of one diagram's
// structure; every read-modify-write of that state runs under the room's
// single mutex, so changes apply one at a time in receipt order.
package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/diagram"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/protocol"
)

var (
	// ErrInvalidPayload marks a change descriptor missing its kind or data.
	ErrInvalidPayload = errors.New("invalid change payload")
	// ErrUnauthorized marks a change from an anonymous or unauthorized user.
	ErrUnauthorized = errors.New("not authorized to edit diagram")
	// ErrPersistenceFailed marks a storage failure. Nothing was broadcast
	// and the in-memory structure was not touched.
	ErrPersistenceFailed = errors.New("persisting change failed")
)

// Client is one connected participant as seen by a room. Implemented by the
// WebSocket session; tests substitute a recorder. Send must serialize its
// argument synchronously and only queue the bytes, so a snapshot handed to
// it under the room lock cannot race with later mutations.
type Client interface {
	SessionID() string
	User() domain.Identity
	JoinedAt() time.Time
	Send(v interface{}) error
}

// Authorizer decides whether a user may edit a diagram.
type Authorizer interface {
	CanEdit(ctx context.Context, diagramID, userID string) (bool, error)
}

// Store is the subset of the persistence bridge rooms need.
type Store interface {
	GetStructure(ctx context.Context, diagramID string) (*diagram.Structure, error)
	SaveChange(ctx context.Context, diagramID string, s *diagram.Structure, rec *domain.ChangeRecord) error
}

// Room coordinates all sessions editing one diagram.
type Room struct {
	diagramID string
	store     Store
	authz     Authorizer

	mu         sync.Mutex
	members    map[string]Client // keyed by session id
	structure  *diagram.Structure
	emptySince time.Time // zero while occupied
}

func newRoom(diagramID string, store Store, authz Authorizer) *Room {
	return &Room{
		diagramID:  diagramID,
		store:      store,
		authz:      authz,
		members:    make(map[string]Client),
		emptySince: time.Now(),
	}
}

// DiagramID returns the diagram this room coordinates.
func (r *Room) DiagramID() string { return r.diagramID }

// Join adds a session to the room. Joining is silent: other members learn
// about newcomers through sync requests, not through a broadcast.
func (r *Room) Join(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c.SessionID()] = c
	r.emptySince = time.Time{}
}

// Leave removes a session from the room. Idempotent: a second leave for the
// same session does nothing. When an authenticated user's last session
// leaves, the remaining members get a usuario_desconectado event with the
// updated presence list.
func (r *Room) Leave(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(c.SessionID())
}

func (r *Room) dropLocked(sessionID string) {
	member, ok := r.members[sessionID]
	if !ok {
		return
	}
	delete(r.members, sessionID)
	if len(r.members) == 0 {
		r.emptySince = time.Now()
	}

	user := member.User()
	if user.Anonymous() {
		return
	}
	for _, other := range r.members {
		if other.User().UserID == user.UserID {
			// Still present through another session.
			return
		}
	}

	msg := protocol.UsuarioDesconectadoMessage{
		BaseMessage:        protocol.BaseMessage{Tipo: protocol.TypeUsuarioDesconectado},
		UsuarioID:          user.UserID,
		UsuarioNombre:      user.Name,
		UsuariosConectados: r.connectedUsersLocked(),
	}
	for _, other := range r.members {
		if err := other.Send(msg); err != nil {
			log.Printf("Failed to notify session %s of disconnect: %v", other.SessionID(), err)
		}
	}
}

// ApplyChange validates, applies, persists and fans out one change. The
// author gets a cambio_confirmado, every other member a cambio_recibido;
// nothing is sent and the cache stays untouched when persistence fails.
func (r *Room) ApplyChange(ctx context.Context, sender Client, d domain.ChangeDescriptor) (*domain.ChangeRecord, error) {
	if !d.Valid() {
		return nil, ErrInvalidPayload
	}
	user := sender.User()
	if user.Anonymous() {
		return nil, ErrUnauthorized
	}
	ok, err := r.authz.CanEdit(ctx, r.diagramID, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: access check: %v", ErrPersistenceFailed, err)
	}
	if !ok {
		return nil, ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadStructureLocked(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := diagram.Apply(r.structure, d.Kind, d.Data, now)
	rec := &domain.ChangeRecord{
		ChangeID:  uuid.New().String(),
		DiagramID: r.diagramID,
		Kind:      d.Kind,
		Data:      d.Data,
		AuthorID:  user.UserID,
		AppliedAt: now,
	}
	if err := r.store.SaveChange(ctx, r.diagramID, next, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	r.structure = next

	timestamp := now.Format(time.RFC3339)
	sender.Send(protocol.CambioConfirmadoMessage{
		BaseMessage: protocol.BaseMessage{Tipo: protocol.TypeCambioConfirmado},
		CambioID:    rec.ChangeID,
		Timestamp:   timestamp,
	})
	broadcast := protocol.CambioRecibidoMessage{
		BaseMessage:   protocol.BaseMessage{Tipo: protocol.TypeCambioRecibido},
		UsuarioID:     user.UserID,
		UsuarioNombre: user.Name,
		Cambio:        d,
		CambioID:      rec.ChangeID,
		Timestamp:     timestamp,
	}
	for id, member := range r.members {
		if id == sender.SessionID() {
			continue
		}
		member.Send(broadcast)
	}
	return rec, nil
}

// SyncState sends the current structure and presence list to the requester
// only. It never mutates the structure and never broadcasts.
func (r *Room) SyncState(ctx context.Context, sender Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadStructureLocked(ctx); err != nil {
		return err
	}
	return sender.Send(protocol.EstadoSincronizadoMessage{
		BaseMessage:        protocol.BaseMessage{Tipo: protocol.TypeEstadoSincronizado},
		Estructura:         r.structure,
		UsuariosConectados: r.connectedUsersLocked(),
	})
}

// SetEditingState relays an ephemeral editing signal to every other member.
// No persistence, no confirmation.
func (r *Room) SetEditingState(sender Client, elementID string, editing bool) {
	user := sender.User()
	msg := protocol.UsuarioEditandoBroadcast{
		BaseMessage:   protocol.BaseMessage{Tipo: protocol.TypeUsuarioEditando},
		ElementoID:    elementID,
		UsuarioID:     user.UserID,
		UsuarioNombre: user.Name,
		Editando:      editing,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, member := range r.members {
		if id == sender.SessionID() {
			continue
		}
		member.Send(msg)
	}
}

// Pong answers a ping with a liveness echo to the requester only.
func (r *Room) Pong(sender Client) {
	sender.Send(protocol.PongMessage{
		BaseMessage: protocol.BaseMessage{Tipo: protocol.TypePong},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ConnectedUsers returns the current presence list.
func (r *Room) ConnectedUsers() []domain.ConnectedUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedUsersLocked()
}

// MemberCount returns the number of connected sessions.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// loadStructureLocked populates the structure cache from the store on first
// use. Callers hold r.mu.
func (r *Room) loadStructureLocked(ctx context.Context) error {
	if r.structure != nil {
		return nil
	}
	s, err := r.store.GetStructure(ctx, r.diagramID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if s == nil {
		s = diagram.NewStructure()
	}
	r.structure = s
	return nil
}

// connectedUsersLocked lists authenticated members, one entry per user even
// when a user holds several sessions. Callers hold r.mu.
func (r *Room) connectedUsersLocked() []domain.ConnectedUser {
	earliest := make(map[string]time.Time)
	byUser := make(map[string]domain.ConnectedUser)
	for _, member := range r.members {
		user := member.User()
		if user.Anonymous() {
			continue
		}
		joined := member.JoinedAt()
		if at, ok := earliest[user.UserID]; ok && !joined.Before(at) {
			continue
		}
		earliest[user.UserID] = joined
		byUser[user.UserID] = domain.ConnectedUser{
			ID:          user.UserID,
			Name:        user.Name,
			Email:       user.Email,
			ConnectedAt: joined.UTC().Format(time.RFC3339),
		}
	}

	users := make([]domain.ConnectedUser, 0, len(byUser))
	for _, u := range byUser {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].ConnectedAt != users[j].ConnectedAt {
			return users[i].ConnectedAt < users[j].ConnectedAt
		}
		return users[i].ID < users[j].ID
	})
	return users
}

// emptyFor reports how long the room has had no members; zero while occupied.
func (r *Room) emptyFor(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 || r.emptySince.IsZero() {
		return 0
	}
	return now.Sub(r.emptySince)
}
