package domain

import (
	"encoding/json"
	"time"
)

// ChangeKind represents the kind of a structural diagram change. The values
// are fixed by the wire protocol the editor speaks.
type ChangeKind string

const (
	ChangeKindCreateNode     ChangeKind = "crear_nodo"
	ChangeKindUpdateNode     ChangeKind = "actualizar_nodo"
	ChangeKindDeleteNode     ChangeKind = "eliminar_nodo"
	ChangeKindCreateRelation ChangeKind = "crear_relacion"
	ChangeKindUpdateRelation ChangeKind = "actualizar_relacion"
	ChangeKindDeleteRelation ChangeKind = "eliminar_relacion"
)

// ChangeDescriptor is a client-submitted intent to mutate the diagram
// structure. It arrives untrusted; Valid gates it before anything else runs.
type ChangeDescriptor struct {
	Kind ChangeKind      `json:"tipo"`
	Data json.RawMessage `json:"datos,omitempty"`
}

// Valid reports whether the descriptor carries both required fields.
// Unknown kinds are still valid: they flow through as forward-compatible
// no-ops rather than rejections.
func (d ChangeDescriptor) Valid() bool {
	return d.Kind != "" && len(d.Data) > 0 && string(d.Data) != "null"
}

// ChangeRecord is the durable, immutable outcome of an accepted change
// descriptor, appended to the per-diagram change log.
type ChangeRecord struct {
	ChangeID  string          `json:"cambio_id"`
	DiagramID string          `json:"diagrama_id"`
	Kind      ChangeKind      `json:"tipo"`
	Data      json.RawMessage `json:"datos"`
	AuthorID  string          `json:"usuario_id"`
	AppliedAt time.Time       `json:"timestamp"`
}
