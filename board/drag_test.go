package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"kanban/domain"
)

func loadedStore(t *testing.T, remote *memCollection) *Store {
	t.Helper()
	store, _ := newTestStore(t, remote)
	if _, err := store.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return store
}

func TestDragStateTransitions(t *testing.T) {
	store := loadedStore(t, newMemCollection())
	d := NewDragController(store, nil)
	task := domain.Task{ID: "1", Status: domain.StatusTodo}

	d.Enter(domain.StatusDone)
	if got := d.State().State; got != DragIdle {
		t.Fatalf("enter while idle must be ignored, got %s", got)
	}

	d.Start(task)
	if got := d.State().State; got != DragDragging {
		t.Fatalf("expected dragging, got %s", got)
	}
	d.Enter(domain.StatusDone)
	if s := d.State(); s.State != DragHovering || s.Target != domain.StatusDone {
		t.Fatalf("expected hovering over done, got %+v", s)
	}
	d.Enter("archive")
	if s := d.State(); s.State != DragDragging || s.Target != "" {
		t.Fatalf("unknown column must count as leaving, got %+v", s)
	}
	d.Enter(domain.StatusInProgress)
	d.Leave()
	if s := d.State(); s.State != DragDragging || s.Target != "" {
		t.Fatalf("expected dragging after leave, got %+v", s)
	}
	d.Cancel()
	if got := d.State().State; got != DragIdle {
		t.Fatalf("expected idle after cancel, got %s", got)
	}
}

func TestDropMovesTaskOptimistically(t *testing.T) {
	remote := newMemCollection(domain.Task{
		ID: "1", Title: "Write the quarterly report", Status: domain.StatusTodo, CreatedAt: "2024-01-01T00:00:00Z",
	})
	store := loadedStore(t, remote)
	d := NewDragController(store, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	remote.updateFn = func(ctx context.Context, id domain.ID, task domain.Task) error {
		close(entered)
		<-release
		return nil
	}

	task, _ := store.Find("1")
	d.Start(task)
	d.Enter(domain.StatusInProgress)

	type result struct {
		res DropResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := d.Drop(context.Background())
		done <- result{res, err}
	}()

	<-entered
	local, _ := store.Find("1")
	if local.Status != domain.StatusInProgress {
		t.Fatalf("expected local move before backend confirmation, got %q", local.Status)
	}
	close(release)

	var r result
	select {
	case r = <-done:
	case <-time.After(time.Second):
		t.Fatal("drop did not finish")
	}
	if r.err != nil {
		t.Fatalf("drop: %v", r.err)
	}
	if !r.res.Moved || r.res.From != domain.StatusTodo || r.res.To != domain.StatusInProgress {
		t.Fatalf("unexpected result %+v", r.res)
	}
	stored, _ := remote.stored("1")
	if stored.Status != domain.StatusInProgress || stored.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected stored task %+v", stored)
	}
	if stored.Title != "Write the quarterly report" {
		t.Fatalf("full record must be written back, got %+v", stored)
	}
	if d.State().State != DragIdle {
		t.Fatal("controller must be idle after drop")
	}
}

func TestDropFailureResynchronizes(t *testing.T) {
	remote := newMemCollection(domain.Task{
		ID: "1", Title: "Write the quarterly report", Status: domain.StatusTodo,
	})
	store := loadedStore(t, remote)
	d := NewDragController(store, nil)

	boom := &domain.TransportError{Op: "update", StatusCode: 500, Err: errors.New("server error")}
	remote.updateFn = func(context.Context, domain.ID, domain.Task) error { return boom }

	task, _ := store.Find("1")
	d.Start(task)
	d.Enter(domain.StatusInProgress)
	res, err := d.Drop(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected update error, got %v", err)
	}
	if res.Moved {
		t.Fatal("rejected move must not report Moved")
	}
	local, _ := store.Find("1")
	if local.Status != domain.StatusTodo {
		t.Fatalf("expected reload to restore todo, got %q", local.Status)
	}
	if res.Task.Status != domain.StatusTodo {
		t.Fatalf("result should carry the reloaded task, got %+v", res.Task)
	}
}

func TestDropNoops(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *DragController, task domain.Task)
	}{
		{
			name: "same column",
			setup: func(d *DragController, task domain.Task) {
				d.Start(task)
				d.Enter(domain.StatusTodo)
			},
		},
		{
			name: "outside any column",
			setup: func(d *DragController, task domain.Task) {
				d.Start(task)
				d.Enter(domain.StatusDone)
				d.Leave()
			},
		},
		{
			name:  "no gesture",
			setup: func(d *DragController, task domain.Task) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newMemCollection(domain.Task{ID: "1", Title: "Write the quarterly report", Status: domain.StatusTodo})
			store := loadedStore(t, remote)
			d := NewDragController(store, nil)
			task, _ := store.Find("1")

			tt.setup(d, task)
			res, err := d.Drop(context.Background())
			if err != nil {
				t.Fatalf("drop: %v", err)
			}
			if res.Moved {
				t.Fatalf("expected no-op, got %+v", res)
			}
			if len(remote.updates) != 0 || remote.gets != 0 {
				t.Fatalf("no backend write expected, updates=%d gets=%d", len(remote.updates), remote.gets)
			}
		})
	}
}

func TestDropMatchesNormalizedIDs(t *testing.T) {
	remote := newMemCollection(domain.Task{ID: "5", Title: "Write the quarterly report", Status: domain.StatusTodo})
	store := loadedStore(t, remote)
	d := NewDragController(store, nil)

	d.Start(domain.Task{ID: "05", Title: "Write the quarterly report", Status: domain.StatusTodo})
	d.Enter(domain.StatusDone)
	res, err := d.Drop(context.Background())
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !res.Moved {
		t.Fatalf("expected move, got %+v", res)
	}
	local, _ := store.Find("5")
	if local.Status != domain.StatusDone {
		t.Fatalf("expected local task to move, got %q", local.Status)
	}
}

func TestDropShortLegacyTitleStillMoves(t *testing.T) {
	remote := newMemCollection(domain.Task{ID: "1", Title: "Short", Status: domain.StatusTodo})
	store := loadedStore(t, remote)
	d := NewDragController(store, nil)

	task, _ := store.Find("1")
	d.Start(task)
	d.Enter(domain.StatusDone)
	if _, err := d.Drop(context.Background()); err != nil {
		t.Fatalf("status-only move must not revalidate the title: %v", err)
	}
}
