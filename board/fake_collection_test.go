package board

import (
	"context"
	"sync"

	"kanban/domain"
)

// memCollection is an in-memory collection with hooks to inject failures or
// block individual calls.
type memCollection struct {
	mu     sync.Mutex
	tasks  []domain.Task
	nextID int64

	listFn   func(ctx context.Context) error
	updateFn func(ctx context.Context, id domain.ID, t domain.Task) error

	creates int
	updates []domain.Task
	deletes int
	gets    int
}

func newMemCollection(tasks ...domain.Task) *memCollection {
	m := &memCollection{nextID: 1}
	for _, t := range tasks {
		if n, ok := t.ID.Int(); ok && n >= m.nextID {
			m.nextID = n + 1
		}
		m.tasks = append(m.tasks, t)
	}
	return m
}

func (m *memCollection) List(ctx context.Context) ([]domain.Task, error) {
	if m.listFn != nil {
		if err := m.listFn(ctx); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Task, len(m.tasks))
	copy(out, m.tasks)
	return out, nil
}

func (m *memCollection) Get(ctx context.Context, id domain.ID) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	for _, t := range m.tasks {
		if t.ID.Equal(id) {
			return t, nil
		}
	}
	return domain.Task{}, &domain.NotFoundError{ID: id}
}

func (m *memCollection) Create(ctx context.Context, d domain.Draft) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	t := domain.Task{
		ID:          domain.IDFromInt(m.nextID),
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status,
		CreatedAt:   "2024-06-01T12:00:00.000Z",
	}
	m.nextID++
	m.tasks = append(m.tasks, t)
	return t, nil
}

func (m *memCollection) Update(ctx context.Context, id domain.ID, t domain.Task) (domain.Task, error) {
	if m.updateFn != nil {
		if err := m.updateFn(ctx, id, t); err != nil {
			return domain.Task{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, t)
	for i := range m.tasks {
		if m.tasks[i].ID.Equal(id) {
			m.tasks[i] = t
			return t, nil
		}
	}
	return domain.Task{}, &domain.NotFoundError{ID: id}
}

func (m *memCollection) Delete(ctx context.Context, id domain.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	for i := range m.tasks {
		if m.tasks[i].ID.Equal(id) {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return &domain.NotFoundError{ID: id}
}

func (m *memCollection) stored(id domain.ID) (domain.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID.Equal(id) {
			return t, true
		}
	}
	return domain.Task{}, false
}
