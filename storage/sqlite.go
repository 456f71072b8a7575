package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"kanban/domain"
)

// SQLiteBackend stores tasks in a single table. Rows are listed in the order
// they were inserted.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and migrates) the database at path.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("storage: sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tasks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		numeric_id INTEGER,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate sqlite: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

const selectTasks = `SELECT id, title, description, status, created_at FROM tasks`

func (b *SQLiteBackend) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := b.db.QueryContext(ctx, selectTasks+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (b *SQLiteBackend) Get(ctx context.Context, id domain.ID) (domain.Task, error) {
	row := b.db.QueryRowContext(ctx, selectTasks+` WHERE id = ?`, key(id))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	return t, err
}

func (b *SQLiteBackend) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID.IsZero() {
		return domain.Task{}, errors.New("storage: insert without id")
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO tasks (id, numeric_id, title, description, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key(t.ID), numericID(t.ID), t.Title, t.Description, string(t.Status), t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Task{}, ErrConflict
		}
		return domain.Task{}, err
	}
	return t, nil
}

func (b *SQLiteBackend) Replace(ctx context.Context, id domain.ID, t domain.Task) (domain.Task, error) {
	res, err := b.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, created_at = ? WHERE id = ?`,
		t.Title, t.Description, string(t.Status), t.CreatedAt, key(id))
	if err != nil {
		return domain.Task{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Task{}, ErrNotFound
	}
	t.ID = id
	return t, nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, id domain.ID) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, key(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *SQLiteBackend) NextID(ctx context.Context) (domain.ID, error) {
	var highest sql.NullInt64
	if err := b.db.QueryRowContext(ctx, `SELECT MAX(numeric_id) FROM tasks`).Scan(&highest); err != nil {
		return "", err
	}
	return domain.IDFromInt(highest.Int64 + 1), nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t      domain.Task
		id     string
		status string
	)
	if err := s.Scan(&id, &t.Title, &t.Description, &status, &t.CreatedAt); err != nil {
		return domain.Task{}, err
	}
	t.ID = domain.ParseID(id)
	t.Status = domain.Status(status)
	return t, nil
}

func numericID(id domain.ID) sql.NullInt64 {
	n, ok := id.Int()
	return sql.NullInt64{Int64: n, Valid: ok}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
