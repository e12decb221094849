package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/diagram"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(diagramID, authorID string, kind domain.ChangeKind, data string, at time.Time) *domain.ChangeRecord {
	return &domain.ChangeRecord{
		ChangeID:  uuid.New().String(),
		DiagramID: diagramID,
		Kind:      kind,
		Data:      json.RawMessage(data),
		AuthorID:  authorID,
		AppliedAt: at,
	}
}

func TestCreateAndGetStructure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateDiagram(ctx, "7", "u1", nil); err != nil {
		t.Fatalf("CreateDiagram failed: %v", err)
	}

	got, err := store.GetStructure(ctx, "7")
	if err != nil {
		t.Fatalf("GetStructure failed: %v", err)
	}
	if got == nil || len(got.Nodes) != 0 || len(got.Relations) != 0 {
		t.Fatalf("expected empty structure, got %+v", got)
	}

	missing, err := store.GetStructure(ctx, "999")
	if err != nil {
		t.Fatalf("GetStructure failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing diagram, got %+v", missing)
	}
}

func TestSaveChangePersistsStructureAndRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateDiagram(ctx, "7", "u1", nil); err != nil {
		t.Fatalf("CreateDiagram failed: %v", err)
	}

	structure := diagram.NewStructure()
	structure.Nodes = append(structure.Nodes, diagram.Node{"id": "n1", "x": 0.0})
	rec := testRecord("7", "u1", domain.ChangeKindCreateNode, `{"id":"n1","x":0}`, time.Now())

	if err := store.SaveChange(ctx, "7", structure, rec); err != nil {
		t.Fatalf("SaveChange failed: %v", err)
	}

	got, err := store.GetStructure(ctx, "7")
	if err != nil {
		t.Fatalf("GetStructure failed: %v", err)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].ID() != "n1" {
		t.Fatalf("expected saved node, got %+v", got.Nodes)
	}

	changes, err := store.ListChanges(ctx, "7", 0)
	if err != nil {
		t.Fatalf("ListChanges failed: %v", err)
	}
	if len(changes) != 1 || changes[0].ChangeID != rec.ChangeID || changes[0].Kind != domain.ChangeKindCreateNode {
		t.Fatalf("unexpected change log: %+v", changes)
	}
}

func TestSaveChangeMissingDiagramIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := testRecord("999", "u1", domain.ChangeKindCreateNode, `{"id":"n1"}`, time.Now())
	if err := store.SaveChange(ctx, "999", diagram.NewStructure(), rec); err == nil {
		t.Fatal("expected error saving change for missing diagram")
	}

	changes, err := store.ListChanges(ctx, "999", 0)
	if err != nil {
		t.Fatalf("ListChanges failed: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("change must not be recorded when the structure save fails: %+v", changes)
	}
}

func TestListChangesNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateDiagram(ctx, "7", "u1", nil); err != nil {
		t.Fatalf("CreateDiagram failed: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		rec := testRecord("7", "u1", domain.ChangeKindCreateNode, `{"id":"n1"}`, base.Add(time.Duration(i)*time.Second))
		if err := store.SaveChange(ctx, "7", diagram.NewStructure(), rec); err != nil {
			t.Fatalf("SaveChange failed: %v", err)
		}
	}

	changes, err := store.ListChanges(ctx, "7", 2)
	if err != nil {
		t.Fatalf("ListChanges failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if !changes[0].AppliedAt.After(changes[1].AppliedAt) {
		t.Fatalf("expected newest first, got %v then %v", changes[0].AppliedAt, changes[1].AppliedAt)
	}
}

func TestGetAccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateDiagram(ctx, "7", "u1", nil); err != nil {
		t.Fatalf("CreateDiagram failed: %v", err)
	}
	if err := store.AddCollaborator(ctx, "7", "u2"); err != nil {
		t.Fatalf("AddCollaborator failed: %v", err)
	}
	if err := store.AddCollaborator(ctx, "7", "u2"); err != nil {
		t.Fatalf("AddCollaborator must be idempotent: %v", err)
	}

	access, err := store.GetAccess(ctx, "7")
	if err != nil {
		t.Fatalf("GetAccess failed: %v", err)
	}
	if access.OwnerID != "u1" {
		t.Fatalf("expected owner u1, got %q", access.OwnerID)
	}
	if len(access.Collaborators) != 1 || access.Collaborators[0] != "u2" {
		t.Fatalf("expected collaborator u2, got %+v", access.Collaborators)
	}

	missing, err := store.GetAccess(ctx, "999")
	if err != nil {
		t.Fatalf("GetAccess failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil access for missing diagram, got %+v", missing)
	}
}
