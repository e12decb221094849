// Package store persists diagram structures and the append-only change log.
// It is the durable collaborator behind the collaboration rooms; everything
// else about project and user management lives in other services.
package store

import (
	"context"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/diagram"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
)

// Store is the persistence bridge used by rooms and the read API.
type Store interface {
	// GetStructure returns the stored structure, or (nil, nil) when the
	// diagram does not exist.
	GetStructure(ctx context.Context, diagramID string) (*diagram.Structure, error)

	// SaveChange stores the new structure and appends the change record in
	// one transaction. Either both land or neither does.
	SaveChange(ctx context.Context, diagramID string, s *diagram.Structure, rec *domain.ChangeRecord) error

	// ListChanges returns the change log for a diagram, newest first.
	ListChanges(ctx context.Context, diagramID string, limit int) ([]domain.ChangeRecord, error)

	// GetAccess returns the access rows for a diagram, or (nil, nil) when
	// the diagram does not exist.
	GetAccess(ctx context.Context, diagramID string) (*domain.DiagramAccess, error)

	Close() error
}
