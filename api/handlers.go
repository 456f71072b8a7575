// Package api serves the board in a browser: the three columns with their
// filter bar, the create and edit forms, task details, delete confirmation
// and the endpoints behind drag and drop.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban/board"
	"kanban/client"
	"kanban/domain"
)

// Board is the task store the views read and mutate.
type Board interface {
	Snapshot() []domain.Task
	Loading() bool
	Loaded() bool
	Find(id domain.ID) (domain.Task, bool)
	Reload(ctx context.Context) ([]domain.Task, error)
	Get(ctx context.Context, id domain.ID) (domain.Task, error)
	Create(ctx context.Context, d domain.Draft) (domain.Task, error)
	Update(ctx context.Context, id domain.ID, p domain.Patch) (domain.Task, error)
	Delete(ctx context.Context, id domain.ID, confirm board.Confirmer) error
}

// Dragger is the drag gesture state machine.
type Dragger interface {
	Start(task domain.Task)
	Enter(status domain.Status)
	Leave()
	Cancel()
	State() board.DragSnapshot
	Drop(ctx context.Context) (board.DropResult, error)
}

type handlers struct {
	board  Board
	drag   Dragger
	logger *log.Logger
}

type statusOption struct {
	Value string
	Label string
}

type boardPage struct {
	Flash    *Flash
	Term     string
	Status   string
	Statuses []statusOption
	Columns  []board.Column
	Count    int
	Total    int
	Filtered bool
	Empty    bool
}

type formPage struct {
	Flash    *Flash
	Heading  string
	Action   string
	Submit   string
	Cancel   string
	Draft    domain.Draft
	Errors   map[string]string
	Statuses []statusOption

	// RequestKey identifies one logical create across resubmits.
	RequestKey string
}

type detailPage struct {
	Flash       *Flash
	Task        domain.Task
	StatusLabel string
	Created     string
}

type confirmPage struct {
	Flash  *Flash
	Task   domain.Task
	Prompt string
}

type messagePage struct {
	Flash   *Flash
	Heading string
	Message string
	Refresh bool
}

type dragResponse struct {
	State  string        `json:"state"`
	Target domain.Status `json:"target,omitempty"`
	Moved  bool          `json:"moved"`
	Task   *domain.Task  `json:"task,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Register wires the view routes and the template renderer on e.
func Register(e *echo.Echo, b Board, d Dragger, logger *log.Logger) error {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r, err := NewRenderer()
	if err != nil {
		return err
	}
	e.Renderer = r
	h := &handlers{board: b, drag: d, logger: logger}

	g := e.Group("", RequestMetrics(logger))
	g.GET("/", h.boardView)
	g.GET("/new", h.newForm)
	g.POST("/new", h.createTask)
	g.GET("/edit/:id", h.editForm)
	g.POST("/edit/:id", h.updateTask)
	g.GET("/task/:id", h.detail)
	g.GET("/task/:id/delete", h.confirmDelete)
	g.POST("/task/:id/delete", h.deleteTask)
	g.POST("/drag/start/:id", h.dragStart)
	g.POST("/drag/over/:status", h.dragOver)
	g.POST("/drag/leave", h.dragLeave)
	g.POST("/drag/cancel", h.dragCancel)
	g.POST("/drag/drop", h.dragDrop)
	return nil
}

func statusOptions() []statusOption {
	opts := make([]statusOption, 0, len(domain.Statuses()))
	for _, s := range domain.Statuses() {
		opts = append(opts, statusOption{Value: string(s), Label: s.Label()})
	}
	return opts
}

func (h *handlers) boardView(c echo.Context) error {
	m := metricsFrom(c)
	if h.board.Loading() {
		return c.Render(http.StatusOK, "message", messagePage{Heading: "Loading tasks…", Refresh: true})
	}

	flash := takeFlash(c)
	start := time.Now()
	if _, err := h.board.Reload(c.Request().Context()); err != nil {
		m.SetErrorStage("reload")
		flash = &Flash{Level: "error", Message: "Unable to load tasks: " + err.Error()}
	}
	m.ObserveStore(time.Since(start))

	term := c.QueryParam("q")
	status := c.QueryParam("status")
	if status == "" {
		status = domain.StatusAll
	}
	all := h.board.Snapshot()
	visible := board.Filter(all, term, status)
	m.SetTasksShown(len(visible))

	filtered := board.HasActiveFilters(term, status)
	return c.Render(http.StatusOK, "board", boardPage{
		Flash:    flash,
		Term:     term,
		Status:   status,
		Statuses: statusOptions(),
		Columns:  board.Columns(visible),
		Count:    len(visible),
		Total:    len(all),
		Filtered: filtered,
		Empty:    filtered && len(visible) == 0,
	})
}

func draftFromForm(c echo.Context) domain.Draft {
	return domain.Draft{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Status:      domain.Status(c.FormValue("status")),
	}
}

func (h *handlers) newForm(c echo.Context) error {
	status := domain.StatusTodo
	if s, err := domain.ParseStatus(c.QueryParam("status")); err == nil {
		status = s
	}
	return c.Render(http.StatusOK, "form", h.createPage(c, domain.Draft{Status: status}, nil, uuid.NewString()))
}

func (h *handlers) createPage(c echo.Context, d domain.Draft, errs map[string]string, key string) formPage {
	if errs == nil {
		errs = map[string]string{}
	}
	return formPage{
		Flash:    takeFlash(c),
		Heading:  "New task",
		Action:   "/new",
		Submit:   "Create",
		Cancel:   "/",
		Draft:    d,
		Errors:   errs,
		Statuses: statusOptions(),

		RequestKey: key,
	}
}

func (h *handlers) createTask(c echo.Context) error {
	m := metricsFrom(c)
	d := draftFromForm(c)
	key := strings.TrimSpace(c.FormValue("request_key"))
	if key == "" {
		key = uuid.NewString()
	}
	ctx := client.WithIdempotencyKey(c.Request().Context(), key)

	start := time.Now()
	created, err := h.board.Create(ctx, d)
	m.ObserveStore(time.Since(start))
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			m.SetErrorStage("validate")
			return c.Render(http.StatusUnprocessableEntity, "form", h.createPage(c, d.Normalize(), ve.Fields, key))
		}
		if errors.Is(err, domain.ErrDuplicateRequest) {
			setFlash(c, "info", "This task is already being created")
			return c.Redirect(http.StatusSeeOther, "/")
		}
		if created.ID.IsZero() {
			m.SetErrorStage("create")
			page := h.createPage(c, d.Normalize(), nil, key)
			page.Flash = &Flash{Level: "error", Message: "Unable to create task: " + err.Error()}
			return c.Render(http.StatusBadGateway, "form", page)
		}
		// Stored, but the board could not be reloaded.
		m.SetErrorStage("reload")
		setFlash(c, "error", "Task created, but the board could not be refreshed: "+err.Error())
		return c.Redirect(http.StatusSeeOther, "/")
	}
	setFlash(c, "info", "Task created")
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *handlers) editPage(c echo.Context, id domain.ID, d domain.Draft, errs map[string]string) formPage {
	if errs == nil {
		errs = map[string]string{}
	}
	return formPage{
		Flash:    takeFlash(c),
		Heading:  "Edit task",
		Action:   "/edit/" + id.String(),
		Submit:   "Save",
		Cancel:   "/task/" + id.String(),
		Draft:    d,
		Errors:   errs,
		Statuses: statusOptions(),
	}
}

func (h *handlers) editForm(c echo.Context) error {
	m := metricsFrom(c)
	id := domain.ParseID(c.Param("id"))

	start := time.Now()
	task, err := h.board.Get(c.Request().Context(), id)
	m.ObserveStore(time.Since(start))
	if err != nil {
		m.SetErrorStage("get")
		return h.taskError(c, err)
	}
	return c.Render(http.StatusOK, "form", h.editPage(c, task.ID, domain.DraftOf(task), nil))
}

func (h *handlers) updateTask(c echo.Context) error {
	m := metricsFrom(c)
	id := domain.ParseID(c.Param("id"))
	d := draftFromForm(c).Normalize()

	if err := d.Validate(); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			m.SetErrorStage("validate")
			return c.Render(http.StatusUnprocessableEntity, "form", h.editPage(c, id, d, ve.Fields))
		}
		return err
	}

	start := time.Now()
	_, err := h.board.Update(c.Request().Context(), id, domain.PatchOf(d))
	m.ObserveStore(time.Since(start))
	if err != nil {
		m.SetErrorStage("update")
		if domain.IsNotFound(err) {
			return h.taskError(c, err)
		}
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return c.Render(http.StatusUnprocessableEntity, "form", h.editPage(c, id, d, ve.Fields))
		}
		page := h.editPage(c, id, d, nil)
		page.Flash = &Flash{Level: "error", Message: "Unable to update task: " + err.Error()}
		return c.Render(http.StatusBadGateway, "form", page)
	}
	setFlash(c, "info", "Task updated")
	return c.Redirect(http.StatusSeeOther, "/task/"+id.String())
}

// lookup finds a task in local state, loading the board first if this is
// the first request.
func (h *handlers) lookup(c echo.Context, id domain.ID) (domain.Task, bool) {
	if !h.board.Loaded() {
		start := time.Now()
		if _, err := h.board.Reload(c.Request().Context()); err != nil {
			metricsFrom(c).SetErrorStage("reload")
		}
		metricsFrom(c).ObserveStore(time.Since(start))
	}
	return h.board.Find(id)
}

func (h *handlers) detail(c echo.Context) error {
	id := domain.ParseID(c.Param("id"))
	task, ok := h.lookup(c, id)
	if !ok {
		metricsFrom(c).SetErrorStage("not_found")
		return h.notFound(c)
	}
	created := task.CreatedAt
	if t, ok := task.Created(); ok {
		created = t.Local().Format("2 Jan 2006 15:04")
	}
	return c.Render(http.StatusOK, "detail", detailPage{
		Flash:       takeFlash(c),
		Task:        task,
		StatusLabel: task.Status.Label(),
		Created:     created,
	})
}

func (h *handlers) confirmDelete(c echo.Context) error {
	id := domain.ParseID(c.Param("id"))
	task, ok := h.lookup(c, id)
	if !ok {
		metricsFrom(c).SetErrorStage("not_found")
		return h.notFound(c)
	}
	return c.Render(http.StatusOK, "confirm", confirmPage{
		Flash:  takeFlash(c),
		Task:   task,
		Prompt: board.DeletePrompt,
	})
}

func (h *handlers) deleteTask(c echo.Context) error {
	m := metricsFrom(c)
	id := domain.ParseID(c.Param("id"))
	confirm := board.ConfirmFunc(func(string) bool {
		return c.FormValue("confirm") == "yes"
	})

	start := time.Now()
	err := h.board.Delete(c.Request().Context(), id, confirm)
	m.ObserveStore(time.Since(start))
	switch {
	case errors.Is(err, domain.ErrConfirmationDeclined):
		return c.Redirect(http.StatusSeeOther, "/task/"+id.String())
	case domain.IsNotFound(err):
		m.SetErrorStage("delete")
		setFlash(c, "error", err.Error())
	case err != nil:
		m.SetErrorStage("delete")
		setFlash(c, "error", "Unable to delete task: "+err.Error())
		return c.Redirect(http.StatusSeeOther, "/task/"+id.String())
	default:
		setFlash(c, "info", "Task deleted")
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *handlers) taskError(c echo.Context, err error) error {
	if domain.IsNotFound(err) {
		return h.notFound(c)
	}
	return c.Render(http.StatusBadGateway, "message", messagePage{
		Flash:   takeFlash(c),
		Heading: "Something went wrong",
		Message: err.Error(),
	})
}

func (h *handlers) notFound(c echo.Context) error {
	return c.Render(http.StatusNotFound, "message", messagePage{
		Flash:   takeFlash(c),
		Heading: "Task not found",
	})
}

func (h *handlers) dragState(moved bool, task *domain.Task, err error) dragResponse {
	s := h.drag.State()
	resp := dragResponse{State: s.State.String(), Target: s.Target, Moved: moved, Task: task}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (h *handlers) dragStart(c echo.Context) error {
	id := domain.ParseID(c.Param("id"))
	task, ok := h.lookup(c, id)
	if !ok {
		metricsFrom(c).SetErrorStage("not_found")
		return c.JSON(http.StatusNotFound, h.dragState(false, nil, &domain.NotFoundError{ID: id}))
	}
	h.drag.Start(task)
	return c.JSON(http.StatusOK, h.dragState(false, nil, nil))
}

func (h *handlers) dragOver(c echo.Context) error {
	h.drag.Enter(domain.Status(c.Param("status")))
	return c.JSON(http.StatusOK, h.dragState(false, nil, nil))
}

func (h *handlers) dragLeave(c echo.Context) error {
	h.drag.Leave()
	return c.JSON(http.StatusOK, h.dragState(false, nil, nil))
}

func (h *handlers) dragCancel(c echo.Context) error {
	h.drag.Cancel()
	return c.JSON(http.StatusOK, h.dragState(false, nil, nil))
}

func (h *handlers) dragDrop(c echo.Context) error {
	m := metricsFrom(c)
	start := time.Now()
	res, err := h.drag.Drop(c.Request().Context())
	m.ObserveStore(time.Since(start))
	task := res.Task
	if err != nil {
		m.SetErrorStage("move")
		return c.JSON(http.StatusBadGateway, h.dragState(false, &task, err))
	}
	var out *domain.Task
	if res.Moved {
		out = &task
	}
	return c.JSON(http.StatusOK, h.dragState(res.Moved, out, nil))
}
