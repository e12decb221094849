// Package policy decides whether a user may edit a diagram.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.diagram_policy.decision"),
		rego.Module("diagram_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the edit policy. Input carries user_id, owner_id and
// collaborators. Returns "allow" or "deny".
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "deny", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "deny", nil
}

// DefaultPolicy grants edit access to the diagram owner and to invited
// collaborators; everyone else, anonymous included, is denied.
const DefaultPolicy = `
package diagram_policy

default decision = "deny"

decision = "allow" {
	input.user_id != ""
	input.user_id == input.owner_id
}

decision = "allow" {
	input.user_id != ""
	input.user_id == input.collaborators[_]
}
`
