// Package diagram holds the collaborative document structure and the pure
// change applier that mutates it.
package diagram

import (
	"encoding/json"
	"fmt"
)

// Node is one diagram node. Beyond "id" the shape is freeform: the editor
// stores kind, name, position and arbitrary styling attributes, and the
// server carries them through untouched.
type Node map[string]any

// Relation is one diagram relation between two nodes. Freeform like Node.
type Relation map[string]any

// ID returns the node identifier, or "" when absent.
func (n Node) ID() string { return idOf(n) }

// ID returns the relation identifier, or "" when absent.
func (r Relation) ID() string { return idOf(r) }

func idOf(m map[string]any) string {
	v, ok := m["id"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Structure is the authoritative shape of one diagram: its nodes and
// relations. Field names follow the wire protocol.
type Structure struct {
	Nodes        []Node     `json:"nodos"`
	Relations    []Relation `json:"relaciones"`
	LastModified string     `json:"ultima_modificacion,omitempty"`
}

// NewStructure returns an empty structure with non-nil collections so it
// serializes as [] rather than null.
func NewStructure() *Structure {
	return &Structure{Nodes: []Node{}, Relations: []Relation{}}
}

// Clone returns a deep copy of the structure. The contents are plain JSON
// data, so a marshal round trip is a correct deep copy.
func (s *Structure) Clone() *Structure {
	if s == nil {
		return NewStructure()
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return NewStructure()
	}
	var out Structure
	if err := json.Unmarshal(raw, &out); err != nil {
		return NewStructure()
	}
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Relations == nil {
		out.Relations = []Relation{}
	}
	return &out
}
