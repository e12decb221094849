package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/diagram"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS diagrams (
			diagram_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			structure TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS diagram_access (
			diagram_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'colaborador',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (diagram_id, user_id),
			FOREIGN KEY (diagram_id) REFERENCES diagrams(diagram_id)
		)`,
		`CREATE TABLE IF NOT EXISTS changes (
			change_id TEXT PRIMARY KEY,
			diagram_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			data TEXT NOT NULL,
			author_id TEXT NOT NULL,
			applied_at DATETIME NOT NULL,
			FOREIGN KEY (diagram_id) REFERENCES diagrams(diagram_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_diagram ON changes(diagram_id, applied_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateDiagram creates a diagram row owned by ownerID. The owner is also
// recorded in the access table so authorization reads one shape of data.
func (s *SQLiteStore) CreateDiagram(ctx context.Context, diagramID, ownerID string, structure *diagram.Structure) error {
	if structure == nil {
		structure = diagram.NewStructure()
	}
	raw, err := json.Marshal(structure)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO diagrams (diagram_id, owner_id, structure, updated_at) VALUES (?, ?, ?, ?)`,
		diagramID, ownerID, string(raw), time.Now()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO diagram_access (diagram_id, user_id, role) VALUES (?, ?, 'propietario')`,
		diagramID, ownerID); err != nil {
		return err
	}
	return tx.Commit()
}

// AddCollaborator grants a user edit access to a diagram.
func (s *SQLiteStore) AddCollaborator(ctx context.Context, diagramID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO diagram_access (diagram_id, user_id, role) VALUES (?, ?, 'colaborador')`,
		diagramID, userID)
	return err
}

// GetStructure retrieves the stored structure for a diagram.
func (s *SQLiteStore) GetStructure(ctx context.Context, diagramID string) (*diagram.Structure, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT structure FROM diagrams WHERE diagram_id = ?`, diagramID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var structure diagram.Structure
	if err := json.Unmarshal([]byte(raw), &structure); err != nil {
		return nil, fmt.Errorf("corrupt structure for diagram %s: %w", diagramID, err)
	}
	if structure.Nodes == nil {
		structure.Nodes = []diagram.Node{}
	}
	if structure.Relations == nil {
		structure.Relations = []diagram.Relation{}
	}
	return &structure, nil
}

// SaveChange stores the new structure and appends the change record in one
// transaction.
func (s *SQLiteStore) SaveChange(ctx context.Context, diagramID string, structure *diagram.Structure, rec *domain.ChangeRecord) error {
	raw, err := json.Marshal(structure)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE diagrams SET structure = ?, updated_at = ? WHERE diagram_id = ?`,
		string(raw), rec.AppliedAt, diagramID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("diagram %s does not exist", diagramID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO changes (change_id, diagram_id, kind, data, author_id, applied_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ChangeID, diagramID, string(rec.Kind), string(rec.Data), rec.AuthorID, rec.AppliedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// ListChanges returns the change log for a diagram, newest first.
func (s *SQLiteStore) ListChanges(ctx context.Context, diagramID string, limit int) ([]domain.ChangeRecord, error) {
	query := `SELECT change_id, diagram_id, kind, data, author_id, applied_at FROM changes WHERE diagram_id = ? ORDER BY applied_at DESC, change_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, diagramID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ChangeRecord
	for rows.Next() {
		var rec domain.ChangeRecord
		var kind, data string
		if err := rows.Scan(&rec.ChangeID, &rec.DiagramID, &kind, &data, &rec.AuthorID, &rec.AppliedAt); err != nil {
			return nil, err
		}
		rec.Kind = domain.ChangeKind(kind)
		rec.Data = json.RawMessage(data)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetAccess returns the owner and collaborators of a diagram.
func (s *SQLiteStore) GetAccess(ctx context.Context, diagramID string) (*domain.DiagramAccess, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM diagrams WHERE diagram_id = ?`, diagramID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM diagram_access WHERE diagram_id = ? AND user_id != ?`, diagramID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	access := &domain.DiagramAccess{DiagramID: diagramID, OwnerID: ownerID}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		access.Collaborators = append(access.Collaborators, userID)
	}
	return access, rows.Err()
}
