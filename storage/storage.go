// Package storage persists the task collection served by the bundled
// collection server.
package storage

import (
	"context"
	"errors"
	"fmt"

	"kanban/domain"
)

var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("storage: task not found")
	// ErrConflict is returned when inserting an id that already exists.
	ErrConflict = errors.New("storage: task already exists")
)

// Backend stores tasks in insertion order.
type Backend interface {
	List(ctx context.Context) ([]domain.Task, error)
	Get(ctx context.Context, id domain.ID) (domain.Task, error)
	// Insert stores t, which must carry an id.
	Insert(ctx context.Context, t domain.Task) (domain.Task, error)
	// Replace overwrites the record with the given id; the record must exist.
	Replace(ctx context.Context, id domain.ID, t domain.Task) (domain.Task, error)
	Delete(ctx context.Context, id domain.ID) error
	// NextID returns one more than the largest numeric id stored.
	NextID(ctx context.Context) (domain.ID, error)
	Close() error
}

// Kind names a Backend implementation.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindTables Kind = "tables"
)

// Options selects and configures a Backend.
type Options struct {
	Kind             Kind
	File             string
	SQLitePath       string
	ConnectionString string
	Table            string
}

// Open creates the Backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case KindFile, "":
		return NewFileBackend(opts.File)
	case KindSQLite:
		return NewSQLiteBackend(ctx, opts.SQLitePath)
	case KindTables:
		return NewTablesBackend(opts.ConnectionString, opts.Table)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Kind)
	}
}

// nextID returns max(numeric ids)+1, ignoring ids that are not integers.
func nextID(tasks []domain.Task) domain.ID {
	var highest int64
	for _, t := range tasks {
		if n, ok := t.ID.Int(); ok && n > highest {
			highest = n
		}
	}
	return domain.IDFromInt(highest + 1)
}

func indexOf(tasks []domain.Task, id domain.ID) int {
	for i, t := range tasks {
		if t.ID.Equal(id) {
			return i
		}
	}
	return -1
}

// key is the canonical string stored for id.
func key(id domain.ID) string {
	return id.Key()
}
