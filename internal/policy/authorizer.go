package policy

import (
	"context"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
)

// AccessReader provides the stored access rows for a diagram.
type AccessReader interface {
	GetAccess(ctx context.Context, diagramID string) (*domain.DiagramAccess, error)
}

// Authorizer combines the stored access rows with the policy decision.
type Authorizer struct {
	access AccessReader
	engine *Engine
}

// NewAuthorizer creates an authorizer over the given access source and engine.
func NewAuthorizer(access AccessReader, engine *Engine) *Authorizer {
	return &Authorizer{access: access, engine: engine}
}

// CanEdit reports whether the user may apply changes to the diagram. An
// unknown diagram denies: there are no access rows to grant anything.
func (a *Authorizer) CanEdit(ctx context.Context, diagramID, userID string) (bool, error) {
	access, err := a.access.GetAccess(ctx, diagramID)
	if err != nil {
		return false, err
	}
	if access == nil {
		return false, nil
	}

	collaborators := access.Collaborators
	if collaborators == nil {
		collaborators = []string{}
	}
	input := map[string]interface{}{
		"user_id":       userID,
		"owner_id":      access.OwnerID,
		"collaborators": collaborators,
	}

	decision, err := a.engine.Evaluate(ctx, input)
	if err != nil {
		return false, err
	}
	return decision == "allow", nil
}
