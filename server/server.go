// Package server is the bundled task collection server. It speaks the plain
// REST contract the board client expects: GET/POST /tasks and
// GET/PUT/DELETE /tasks/:id with JSON bodies.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban/domain"
	"kanban/storage"
)

const (
	maxBodySize       = 64 << 10
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// Deduper records idempotency keys for create requests.
type Deduper interface {
	Claim(ctx context.Context, key string) (prior domain.ID, claimed bool, err error)
	Complete(ctx context.Context, key string, id domain.ID) error
	Release(ctx context.Context, key string) error
}

type handlers struct {
	backend storage.Backend
	deduper Deduper
	logger  *log.Logger
	now     func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

// Register wires the collection routes on the provided Echo instance. deduper
// may be nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, backend storage.Backend, deduper Deduper, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handlers{backend: backend, deduper: deduper, logger: logger, now: time.Now}

	g := e.Group("/tasks", accessLog(logger), requestBody(maxBodySize))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.replace)
	g.DELETE("/:id", h.remove)
	e.GET("/healthz", h.healthz)
}

func (h *handlers) healthz(c echo.Context) error {
	if _, err := h.backend.NextID(c.Request().Context()); err != nil {
		h.logger.WithError(err).Error("health check failed")
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) list(c echo.Context) error {
	tasks, err := h.backend.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "list", "", err)
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *handlers) get(c echo.Context) error {
	id := domain.ParseID(c.Param("id"))
	task, err := h.backend.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "get", id, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) create(c echo.Context) (err error) {
	var created domain.Task
	ctx := c.Request().Context()
	body, err := decodeBody(c.Request().Body)
	if err != nil {
		return badBody(c, err)
	}

	key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
	if key != "" && h.deduper != nil {
		prior, claimed, derr := h.deduper.Claim(ctx, key)
		switch {
		case derr != nil:
			h.logger.WithField("op", "create").WithError(derr).Warn("idempotency check unavailable")
		case !claimed:
			c.Response().Header().Set(replayedHeader, "true")
			if !prior.IsZero() {
				c.Response().Header().Set(echo.HeaderLocation, c.Request().URL.Path+"/"+prior.String())
			}
			return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate request"})
		default:
			defer func() {
				bg := context.WithoutCancel(ctx)
				if err == nil && c.Response().Status < http.StatusBadRequest {
					if cerr := h.deduper.Complete(bg, key, created.ID); cerr != nil {
						h.logger.WithField("op", "create").WithError(cerr).Warn("complete idempotency key")
					}
					return
				}
				if rerr := h.deduper.Release(bg, key); rerr != nil {
					h.logger.WithField("op", "create").WithError(rerr).Warn("release idempotency key")
				}
			}()
		}
	}

	task := body
	if task.ID.IsZero() {
		if task.ID, err = h.backend.NextID(ctx); err != nil {
			return h.fail(c, "create", "", err)
		}
	}
	if task.CreatedAt == "" {
		task.CreatedAt = h.now().UTC().Format(domain.TimestampLayout)
	}
	created, err = h.backend.Insert(ctx, task)
	if err != nil {
		return h.fail(c, "create", task.ID, err)
	}
	h.logger.WithFields(log.Fields{"op": "create", "task_id": created.ID, "status": created.Status}).Info("task stored")
	return c.JSON(http.StatusCreated, created)
}

func (h *handlers) replace(c echo.Context) error {
	id := domain.ParseID(c.Param("id"))
	body, err := decodeBody(c.Request().Body)
	if err != nil {
		return badBody(c, err)
	}
	if strings.TrimSpace(body.CreatedAt) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "createdAt is required"})
	}
	task := body
	task.ID = id
	updated, err := h.backend.Replace(c.Request().Context(), id, task)
	if err != nil {
		return h.fail(c, "update", id, err)
	}
	h.logger.WithFields(log.Fields{"op": "update", "task_id": id, "status": updated.Status}).Info("task stored")
	return c.JSON(http.StatusOK, updated)
}

func (h *handlers) remove(c echo.Context) error {
	id := domain.ParseID(c.Param("id"))
	if err := h.backend.Delete(c.Request().Context(), id); err != nil {
		return h.fail(c, "delete", id, err)
	}
	h.logger.WithFields(log.Fields{"op": "delete", "task_id": id}).Info("task removed")
	return c.JSON(http.StatusOK, struct{}{})
}

func (h *handlers) fail(c echo.Context, op string, id domain.ID, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.JSON(http.StatusNotFound, struct{}{})
	case errors.Is(err, storage.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: "task already exists"})
	}
	h.logger.WithFields(log.Fields{"op": op, "task_id": id}).WithError(err).Error("storage request failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "storage failure"})
}

func decodeBody(r io.Reader) (domain.Task, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return domain.Task{}, err
	}
	var body domain.Task
	if err := sonic.ConfigStd.Unmarshal(raw, &body); err != nil {
		return domain.Task{}, err
	}
	return body, nil
}

func badBody(c echo.Context, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "body too large"})
	}
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
}

