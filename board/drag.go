package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"kanban/domain"
)

// DragState is the phase of a drag gesture.
type DragState int

const (
	DragIdle DragState = iota
	DragDragging
	DragHovering
)

func (s DragState) String() string {
	switch s {
	case DragDragging:
		return "dragging"
	case DragHovering:
		return "hovering"
	default:
		return "idle"
	}
}

// DragSnapshot describes the gesture in progress.
type DragSnapshot struct {
	State  DragState
	Task   domain.Task
	Target domain.Status
}

// DropResult reports what a drop did. Moved is false for no-op drops and for
// moves the backend rejected.
type DropResult struct {
	Task  domain.Task
	From  domain.Status
	To    domain.Status
	Moved bool
}

// DragController moves a card between columns. A drop applies the new
// status locally before the backend confirms it; if the backend rejects the
// change the store is reloaded rather than undone, so the backend stays the
// source of truth.
type DragController struct {
	store  *Store
	logger *log.Logger

	mu     sync.Mutex
	state  DragState
	task   domain.Task
	target domain.Status
}

// NewDragController creates a controller that writes through store.
func NewDragController(store *Store, logger *log.Logger) *DragController {
	if store == nil {
		panic("board.NewDragController: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &DragController{store: store, logger: logger}
}

// Start begins dragging task. A gesture already in progress is abandoned.
func (d *DragController) Start(task domain.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = DragDragging
	d.task = task
	d.target = ""
}

// Enter records the column under the pointer. Unknown columns count as
// leaving the drop surface.
func (d *DragController) Enter(status domain.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DragIdle {
		return
	}
	if !status.Valid() {
		d.state = DragDragging
		d.target = ""
		return
	}
	d.state = DragHovering
	d.target = status
}

// Leave records that the pointer left every drop surface.
func (d *DragController) Leave() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DragHovering {
		d.state = DragDragging
		d.target = ""
	}
}

// Cancel ends the gesture without a drop.
func (d *DragController) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// State returns the current gesture.
func (d *DragController) State() DragSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DragSnapshot{State: d.state, Task: d.task, Target: d.target}
}

// Drop finishes the gesture. Dropping outside a column or onto the task's
// own column does nothing. Otherwise the local copy is moved at once and the
// full record is written back; on failure the store is reloaded from the
// backend and the write error is returned.
func (d *DragController) Drop(ctx context.Context) (DropResult, error) {
	d.mu.Lock()
	state, task, target := d.state, d.task, d.target
	d.reset()
	d.mu.Unlock()

	res := DropResult{Task: task, From: task.Status, To: target}
	if state != DragHovering || target == "" || target == task.Status {
		res.To = task.Status
		return res, nil
	}

	fields := log.Fields{"op": "move", "task_id": task.ID, "from": task.Status, "to": target}
	moved := task
	moved.Status = target
	if !d.store.replaceLocal(moved) {
		d.logger.WithFields(fields).Warn("dragged task is not in local state")
	}
	res.Task = moved

	if _, err := d.store.write(ctx, task.ID, domain.Patch{Status: &target}); err != nil {
		d.logger.WithFields(fields).WithError(err).Error("move rejected; resynchronizing")
		if _, rerr := d.store.Reload(ctx); rerr != nil {
			d.logger.WithFields(fields).WithError(rerr).Error("resynchronization failed")
		}
		if current, ok := d.store.Find(task.ID); ok {
			res.Task = current
		}
		return res, err
	}
	res.Moved = true
	d.logger.WithFields(fields).Info("task moved")
	return res, nil
}

func (d *DragController) reset() {
	d.state = DragIdle
	d.task = domain.Task{}
	d.target = ""
}
