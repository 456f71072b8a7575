// Package board holds the application state of the kanban board: the local
// mirror of the task collection, the filter applied to it and the drag gesture
// that moves cards between columns.
package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"kanban/domain"
)

// Collection is the remote task collection the store mirrors.
type Collection interface {
	List(ctx context.Context) ([]domain.Task, error)
	Get(ctx context.Context, id domain.ID) (domain.Task, error)
	Create(ctx context.Context, d domain.Draft) (domain.Task, error)
	Update(ctx context.Context, id domain.ID, task domain.Task) (domain.Task, error)
	Delete(ctx context.Context, id domain.ID) error
}

// Store owns the local list of tasks. Views read it through Snapshot and
// change it only through the mutating methods, each of which reloads the
// whole collection once the backend accepted the change.
type Store struct {
	remote Collection
	logger *log.Logger

	mu      sync.RWMutex
	tasks   []domain.Task
	loading int
	loaded  bool
}

// NewStore creates a Store backed by remote.
func NewStore(remote Collection, logger *log.Logger) *Store {
	if remote == nil {
		panic("board.NewStore: collection is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{remote: remote, logger: logger, tasks: []domain.Task{}}
}

// Snapshot returns a copy of the local tasks in backend order.
func (s *Store) Snapshot() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Loading reports whether a reload is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Loaded reports whether at least one reload has succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Find looks a task up in the local state.
func (s *Store) Find(id domain.ID) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID.Equal(id) {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Reload replaces the local state with the backend's collection. On failure
// the previous state is kept.
func (s *Store) Reload(ctx context.Context) ([]domain.Task, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	tasks, err := s.remote.List(ctx)
	if err != nil {
		s.logger.WithField("op", "reload").WithError(err).Error("unable to load tasks")
		return nil, err
	}

	s.mu.Lock()
	s.tasks = tasks
	s.loaded = true
	s.mu.Unlock()

	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	return out, nil
}

// Get fetches the authoritative copy of a task from the backend.
func (s *Store) Get(ctx context.Context, id domain.ID) (domain.Task, error) {
	task, err := s.remote.Get(ctx, id)
	if err != nil {
		s.logger.WithFields(log.Fields{"op": "get", "task_id": id}).WithError(err).Error("unable to fetch task")
		return domain.Task{}, err
	}
	return task, nil
}

// Create validates d, stores it and reloads.
func (s *Store) Create(ctx context.Context, d domain.Draft) (domain.Task, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return domain.Task{}, err
	}
	created, err := s.remote.Create(ctx, d)
	if err != nil {
		s.logger.WithField("op", "create").WithError(err).Error("unable to create task")
		return domain.Task{}, err
	}
	s.logger.WithFields(log.Fields{"op": "create", "task_id": created.ID, "status": created.Status}).Info("task created")
	if _, err := s.Reload(ctx); err != nil {
		return created, err
	}
	return created, nil
}

// Update merges p into the current backend record, writes the full record
// back and reloads.
func (s *Store) Update(ctx context.Context, id domain.ID, p domain.Patch) (domain.Task, error) {
	updated, err := s.write(ctx, id, p)
	if err != nil {
		return domain.Task{}, err
	}
	s.logger.WithFields(log.Fields{"op": "update", "task_id": id, "status": updated.Status}).Info("task updated")
	if _, err := s.Reload(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// Delete removes a task once confirm agrees, then reloads.
func (s *Store) Delete(ctx context.Context, id domain.ID, confirm Confirmer) error {
	if confirm == nil || !confirm.Confirm(DeletePrompt) {
		s.logger.WithFields(log.Fields{"op": "delete", "task_id": id}).Debug("delete declined")
		return domain.ErrConfirmationDeclined
	}
	if err := s.remote.Delete(ctx, id); err != nil {
		s.logger.WithFields(log.Fields{"op": "delete", "task_id": id}).WithError(err).Error("unable to delete task")
		return err
	}
	s.logger.WithFields(log.Fields{"op": "delete", "task_id": id}).Info("task deleted")
	_, err := s.Reload(ctx)
	return err
}

// write performs the fetch-merge-write sequence without reloading. A patch is
// never sent on its own: the stored record is always fetched first so fields
// the patch leaves out, createdAt in particular, are written back unchanged.
func (s *Store) write(ctx context.Context, id domain.ID, p domain.Patch) (domain.Task, error) {
	fields := log.Fields{"op": "update", "task_id": id}
	if err := p.Validate(); err != nil {
		return domain.Task{}, err
	}
	current, err := s.remote.Get(ctx, id)
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("unable to fetch current task")
		return domain.Task{}, err
	}
	merged := current.Apply(p)
	if merged.ID.IsZero() {
		merged.ID = id
	}
	updated, err := s.remote.Update(ctx, merged.ID, merged)
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("unable to update task")
		return domain.Task{}, err
	}
	return updated, nil
}

// replaceLocal swaps the local copy of t without contacting the backend.
func (s *Store) replaceLocal(t domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID.Equal(t.ID) {
			s.tasks[i] = t
			return true
		}
	}
	return false
}

func (s *Store) setLoading(on bool) {
	s.mu.Lock()
	if on {
		s.loading++
	} else if s.loading > 0 {
		s.loading--
	}
	s.mu.Unlock()
}
