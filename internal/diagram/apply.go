package diagram

import (
	"encoding/json"
	"time"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
)

// Apply runs one change descriptor against a structure and returns the
// resulting structure. It never fails: creating an element whose id already
// exists leaves the existing one untouched, updating or deleting a missing
// element changes nothing, and unknown kinds pass through so newer clients
// can speak newer change kinds against this server. The input structure is
// never mutated.
func Apply(s *Structure, kind domain.ChangeKind, data json.RawMessage, now time.Time) *Structure {
	out := s.Clone()

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return out
	}

	switch kind {
	case domain.ChangeKindCreateNode:
		out.Nodes = appendUnlessExists(out.Nodes, payload)
	case domain.ChangeKindUpdateNode:
		mergeByID(out.Nodes, payload)
	case domain.ChangeKindDeleteNode:
		out.Nodes = removeByID(out.Nodes, idOf(payload))
	case domain.ChangeKindCreateRelation:
		out.Relations = appendUnlessExists(out.Relations, payload)
	case domain.ChangeKindUpdateRelation:
		mergeByID(out.Relations, payload)
	case domain.ChangeKindDeleteRelation:
		out.Relations = removeByID(out.Relations, idOf(payload))
	default:
		// Forward-compatible no-op: the change is still recorded by the
		// caller, but the structure stays as it was.
		return out
	}

	out.LastModified = now.UTC().Format(time.RFC3339)
	return out
}

func appendUnlessExists[E ~map[string]any](list []E, payload map[string]any) []E {
	id := idOf(payload)
	for _, e := range list {
		if idOf(e) == id {
			return list
		}
	}
	return append(list, E(payload))
}

func mergeByID[E ~map[string]any](list []E, payload map[string]any) {
	id := idOf(payload)
	for _, e := range list {
		if idOf(e) == id {
			for k, v := range payload {
				e[k] = v
			}
			return
		}
	}
}

func removeByID[E ~map[string]any](list []E, id string) []E {
	out := list[:0]
	for _, e := range list {
		if idOf(e) != id {
			out = append(out, e)
		}
	}
	return out
}
