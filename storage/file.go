package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"

	"kanban/domain"
)

type fileDocument struct {
	Tasks []domain.Task `json:"tasks"`
}

// FileBackend keeps the collection in a JSON document of the form
// {"tasks": [...]}. The document is read once and rewritten after every
// change.
type FileBackend struct {
	path string

	mu    sync.Mutex
	tasks []domain.Task
}

// NewFileBackend loads path, creating an empty document if it does not exist.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("storage: file path is empty")
	}
	b := &FileBackend{path: path, tasks: []domain.Task{}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := b.flush(); err != nil {
			return nil, err
		}
		return b, nil
	case err != nil:
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	if len(data) > 0 {
		var doc fileDocument
		if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", path, err)
		}
		if doc.Tasks != nil {
			b.tasks = doc.Tasks
		}
	}
	return b, nil
}

func (b *FileBackend) List(ctx context.Context) ([]domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Task, len(b.tasks))
	copy(out, b.tasks)
	return out, nil
}

func (b *FileBackend) Get(ctx context.Context, id domain.ID) (domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := indexOf(b.tasks, id)
	if i < 0 {
		return domain.Task{}, ErrNotFound
	}
	return b.tasks[i], nil
}

func (b *FileBackend) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID.IsZero() {
		return domain.Task{}, errors.New("storage: insert without id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if indexOf(b.tasks, t.ID) >= 0 {
		return domain.Task{}, ErrConflict
	}
	b.tasks = append(b.tasks, t)
	if err := b.flush(); err != nil {
		b.tasks = b.tasks[:len(b.tasks)-1]
		return domain.Task{}, err
	}
	return t, nil
}

func (b *FileBackend) Replace(ctx context.Context, id domain.ID, t domain.Task) (domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := indexOf(b.tasks, id)
	if i < 0 {
		return domain.Task{}, ErrNotFound
	}
	prev := b.tasks[i]
	t.ID = prev.ID
	b.tasks[i] = t
	if err := b.flush(); err != nil {
		b.tasks[i] = prev
		return domain.Task{}, err
	}
	return t, nil
}

func (b *FileBackend) Delete(ctx context.Context, id domain.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := indexOf(b.tasks, id)
	if i < 0 {
		return ErrNotFound
	}
	prev := b.tasks
	next := make([]domain.Task, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)
	b.tasks = next
	if err := b.flush(); err != nil {
		b.tasks = prev
		return err
	}
	return nil
}

func (b *FileBackend) NextID(ctx context.Context) (domain.ID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return nextID(b.tasks), nil
}

func (b *FileBackend) Close() error { return nil }

// flush writes the document to a temporary file and renames it over path.
// Callers hold b.mu.
func (b *FileBackend) flush() error {
	data, err := sonic.ConfigStd.MarshalIndent(fileDocument{Tasks: b.tasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode tasks: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".tasks-*.json")
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", b.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: write %s: %w", b.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: write %s: %w", b.path, err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("storage: write %s: %w", b.path, err)
	}
	return nil
}
