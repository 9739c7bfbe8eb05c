package plan

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists plans in SQLite. The full plan is stored as a JSON
// document; id, status and updated_at are indexed columns for querying.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed plan store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensurePlanSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLiteStore opens (or creates) the database at path and returns a store.
func OpenSQLiteStore(path string) (*SQLiteStore, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

// Save upserts a plan and maintains the single current-plan marker.
func (s *SQLiteStore) Save(ctx context.Context, p *Plan, current bool) error {
	doc, err := MarshalJSON(p, false)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (id, goal, status, doc_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			goal = excluded.goal,
			status = excluded.status,
			doc_json = excluded.doc_json,
			updated_at = excluded.updated_at
	`,
		p.ID,
		p.Goal,
		string(p.Status),
		string(doc),
		normalizeTime(p.CreatedAt),
		normalizeTime(p.UpdatedAt),
	)
	if err != nil {
		return err
	}

	if current {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO current_plan (slot, plan_id) VALUES (1, ?)
			ON CONFLICT(slot) DO UPDATE SET plan_id = excluded.plan_id
		`, p.ID); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM current_plan WHERE slot = 1 AND plan_id = ?`, p.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load returns a plan by id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Plan, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc_json FROM plans WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return ParseJSON([]byte(doc))
}

// LoadCurrent returns the plan last saved as current.
func (s *SQLiteStore) LoadCurrent(ctx context.Context) (*Plan, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT p.doc_json FROM plans p
		JOIN current_plan c ON c.plan_id = p.id
		WHERE c.slot = 1
	`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return ParseJSON([]byte(doc))
}

// ClearCurrent forgets the current-plan marker without deleting plans.
func (s *SQLiteStore) ClearCurrent(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM current_plan WHERE slot = 1`)
	return err
}

// List returns plans matching the filter, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Plan, error) {
	query := `SELECT doc_json FROM plans`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		p, err := ParseJSON([]byte(doc))
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func ensurePlanSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			goal TEXT,
			status TEXT NOT NULL,
			doc_json TEXT NOT NULL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
		CREATE INDEX IF NOT EXISTS idx_plans_updated ON plans(updated_at);
		CREATE TABLE IF NOT EXISTS current_plan (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			plan_id TEXT NOT NULL REFERENCES plans(id)
		);
	`)
	return err
}
