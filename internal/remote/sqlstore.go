package remote

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SQLStore keeps tasks and persons in Postgres.
type SQLStore struct {
	db           *sql.DB
	tasksTable   string
	tasksIndex   string
	personsTable string
}

// OpenSQLStore connects to Postgres and verifies the connection.
func OpenSQLStore(dsn, tasksTable, personsTable string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewSQLStore(db, tasksTable, personsTable), nil
}

func NewSQLStore(db *sql.DB, tasksTable, personsTable string) *SQLStore {
	return &SQLStore{
		db:           db,
		tasksTable:   pq.QuoteIdentifier(tasksTable),
		tasksIndex:   pq.QuoteIdentifier(tasksTable + "_owner_idx"),
		personsTable: pq.QuoteIdentifier(personsTable),
	}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + s.tasksTable + ` (
			id             TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			name           TEXT NOT NULL,
			due_date       TIMESTAMPTZ NOT NULL,
			is_completed   BOOLEAN NOT NULL DEFAULT FALSE,
			assigned_to    TEXT,
			notes          TEXT,
			repeat_option  TEXT NOT NULL DEFAULT 'never',
			parent_task_id TEXT,
			created_at     TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS ` + s.tasksIndex + ` ON ` + s.tasksTable + ` (owner_id)`,
		`CREATE TABLE IF NOT EXISTS ` + s.personsTable + ` (
			id       TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name     TEXT NOT NULL,
			icon     TEXT NOT NULL DEFAULT '',
			color    TEXT NOT NULL DEFAULT ''
		)`,
	}
}

func (s *SQLStore) FetchTasks(ctx context.Context, accountID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name, due_date, is_completed,
		assigned_to, notes, repeat_option, parent_task_id, created_at
		FROM `+s.tasksTable+` WHERE owner_id = $1 ORDER BY due_date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	out := []TaskRecord{}
	for rows.Next() {
		var (
			rec                         TaskRecord
			due                         time.Time
			created                     sql.NullTime
			assignedTo, notes, parentID sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &due, &rec.IsCompleted,
			&assignedTo, &notes, &rec.RepeatOption, &parentID, &created); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		rec.DueDate = formatTime(due)
		if created.Valid {
			rec.CreatedAt = formatTime(created.Time)
		}
		rec.AssignedTo = nullString(assignedTo)
		rec.Notes = nullString(notes)
		rec.ParentTaskID = nullString(parentID)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return out, nil
}

func (s *SQLStore) UpsertTask(ctx context.Context, rec TaskRecord) error {
	due, err := ParseTime(rec.DueDate)
	if err != nil {
		return fmt.Errorf("upsert task %s: dueDate: %w", rec.ID, err)
	}
	var created sql.NullTime
	if rec.CreatedAt != "" {
		t, err := ParseTime(rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert task %s: createdAt: %w", rec.ID, err)
		}
		created = sql.NullTime{Time: t, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO `+s.tasksTable+` (id, owner_id, name, due_date,
		is_completed, assigned_to, notes, repeat_option, parent_task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			due_date = EXCLUDED.due_date,
			is_completed = EXCLUDED.is_completed,
			assigned_to = EXCLUDED.assigned_to,
			notes = EXCLUDED.notes,
			repeat_option = EXCLUDED.repeat_option,
			parent_task_id = EXCLUDED.parent_task_id,
			created_at = EXCLUDED.created_at`,
		rec.ID, rec.OwnerID, rec.Name, due, rec.IsCompleted,
		rec.AssignedTo, rec.Notes, rec.RepeatOption, rec.ParentTaskID, created)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+s.tasksTable+` WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) FetchPersons(ctx context.Context, accountID string) ([]PersonRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name, icon, color
		FROM `+s.personsTable+` WHERE owner_id = $1 ORDER BY name, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	out := []PersonRecord{}
	for rows.Next() {
		var rec PersonRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.Icon, &rec.Color); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	return out, nil
}

func (s *SQLStore) UpsertPerson(ctx context.Context, rec PersonRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+s.personsTable+` (id, owner_id, name, icon, color)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			icon = EXCLUDED.icon,
			color = EXCLUDED.color`,
		rec.ID, rec.OwnerID, rec.Name, rec.Icon, rec.Color)
	if err != nil {
		return fmt.Errorf("upsert person %s: %w", rec.ID, err)
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}

var _ Client = (*SQLStore)(nil)
