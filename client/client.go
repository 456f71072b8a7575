// Package client talks to the REST collection that stores the board's tasks.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kanban/domain"
)

const (
	tracerName       = "kanban/client"
	maxErrorBodySize = 4 * 1024
	headerRequestID  = "X-Request-ID"
	headerIdemKey    = "Idempotency-Key"
	headerReplayed   = "Idempotent-Replayed"
)

type idempotencyKeyCtx struct{}

// WithIdempotencyKey attaches the key sent with creates made under ctx.
// Submitting the same logical create twice with one key stores one task.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFrom returns the key attached by WithIdempotencyKey.
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// IDMode selects which side assigns identifiers on create.
type IDMode string

const (
	// IDModeServer leaves id assignment to the collection backend.
	IDModeServer IDMode = "server"
	// IDModeClient scans the collection and sends max(id)+1.
	IDModeClient IDMode = "client"
)

// ParseIDMode validates a configured id mode.
func ParseIDMode(raw string) (IDMode, error) {
	switch m := IDMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "", IDModeServer:
		return IDModeServer, nil
	case IDModeClient:
		return IDModeClient, nil
	default:
		return "", fmt.Errorf("unsupported id mode %q", raw)
	}
}

// Client wraps http.Client with the five collection operations.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
	idMode  IDMode
	now     func() time.Time
	tracer  trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for request tracing output.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithIDMode selects client or server side id assignment.
func WithIDMode(mode IDMode) Option {
	return func(c *Client) {
		if mode != "" {
			c.idMode = mode
		}
	}
}

// WithClock overrides the clock used to stamp createdAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Client for the collection at baseURL, e.g.
// http://localhost:3001/tasks.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  log.StandardLogger(),
		idMode:  IDModeServer,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IDMode reports the configured id assignment mode.
func (c *Client) IDMode() IDMode { return c.idMode }

// List fetches the whole collection.
func (c *Client) List(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if _, _, err := c.do(ctx, "list", http.MethodGet, "", nil, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// Get fetches one task. Any non-success response is reported as a
// NotFoundError; network failures stay TransportErrors.
func (c *Client) Get(ctx context.Context, id domain.ID) (domain.Task, error) {
	var task domain.Task
	status, _, err := c.do(ctx, "get", http.MethodGet, itemPath(id), nil, nil, &task)
	if err != nil {
		if rejected(status) {
			return domain.Task{}, &domain.NotFoundError{ID: id}
		}
		return domain.Task{}, err
	}
	return task, nil
}

type createRequest struct {
	ID          *domain.ID    `json:"id,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      domain.Status `json:"status"`
	CreatedAt   string        `json:"createdAt"`
}

// Create stores a new task stamped with the current time and returns the
// record the backend kept. The request carries the key from
// WithIdempotencyKey, or a fresh one. When the backend reports that the key
// already produced a task, that task is fetched and returned; a create still
// in flight under the key fails with domain.ErrDuplicateRequest.
func (c *Client) Create(ctx context.Context, d domain.Draft) (domain.Task, error) {
	body := createRequest{
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status,
		CreatedAt:   c.now().UTC().Format(domain.TimestampLayout),
	}
	if c.idMode == IDModeClient {
		id, err := c.nextID(ctx)
		if err != nil {
			return domain.Task{}, err
		}
		body.ID = &id
	}

	key := IdempotencyKeyFrom(ctx)
	if key == "" {
		key = uuid.NewString()
	}
	var created domain.Task
	status, hdr, err := c.do(ctx, "create", http.MethodPost, "", map[string]string{headerIdemKey: key}, body, &created)
	if err != nil {
		if status == http.StatusConflict && hdr.Get(headerReplayed) != "" {
			return c.replayed(ctx, key, hdr.Get("Location"))
		}
		return domain.Task{}, err
	}
	if created.CreatedAt == "" {
		created.CreatedAt = body.CreatedAt
	}
	if created.ID.IsZero() && body.ID != nil {
		created.ID = *body.ID
	}
	return created, nil
}

// Update replaces the stored record with task in full. The body carries the
// path id; when task already holds an equivalent id its written form is kept.
func (c *Client) Update(ctx context.Context, id domain.ID, task domain.Task) (domain.Task, error) {
	if !task.ID.Equal(id) {
		task.ID = id
	}
	var updated domain.Task
	status, _, err := c.do(ctx, "update", http.MethodPut, itemPath(id), nil, task, &updated)
	if err != nil {
		if status == http.StatusNotFound {
			return domain.Task{}, &domain.NotFoundError{ID: id}
		}
		return domain.Task{}, err
	}
	if updated.ID.IsZero() {
		updated.ID = id
	}
	return updated, nil
}

// Delete removes a task. Deleting an id the backend no longer holds fails
// with a NotFoundError.
func (c *Client) Delete(ctx context.Context, id domain.ID) error {
	status, _, err := c.do(ctx, "delete", http.MethodDelete, itemPath(id), nil, nil, nil)
	if err != nil && status == http.StatusNotFound {
		return &domain.NotFoundError{ID: id}
	}
	return err
}

// replayed resolves a create the backend already saw under key.
func (c *Client) replayed(ctx context.Context, key, location string) (domain.Task, error) {
	fields := log.Fields{"op": "create", "idempotency_key": key}
	if location == "" {
		c.logger.WithFields(fields).Info("create already in flight")
		return domain.Task{}, &domain.TransportError{Op: "create", StatusCode: http.StatusConflict, Err: domain.ErrDuplicateRequest}
	}
	id := domain.ParseID(path.Base(location))
	task, err := c.Get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.logger.WithFields(fields).WithField("task_id", task.ID).Info("create replayed")
	return task, nil
}

// nextID scans the collection for the highest numeric id. Non-numeric ids
// are ignored.
func (c *Client) nextID(ctx context.Context) (domain.ID, error) {
	tasks, err := c.List(ctx)
	if err != nil {
		return "", err
	}
	var highest int64
	for _, t := range tasks {
		if n, ok := t.ID.Int(); ok && n > highest {
			highest = n
		}
	}
	return domain.IDFromInt(highest + 1), nil
}

// rejected reports whether the backend answered with a non-success status.
func rejected(status int) bool {
	return status != 0 && (status < 200 || status > 299)
}

func itemPath(id domain.ID) string {
	return "/" + url.PathEscape(id.String())
}

// do performs one request. The returned status is zero and the header nil when
// no HTTP response was received.
func (c *Client) do(ctx context.Context, op, method, endpoint string, headers map[string]string, body, out any) (int, http.Header, error) {
	ctx, span := c.tracer.Start(ctx, "client."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("kanban.op", op),
	))
	defer span.End()
	start := time.Now()

	var rdr io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "encode")
			return 0, nil, &domain.TransportError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, rdr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request")
		return 0, nil, &domain.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(headerRequestID, requestID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.WithFields(log.Fields{"op": op, "request_id": requestID}).WithError(err).Debug("collection request failed")
		return 0, nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.WithFields(log.Fields{
		"op":          op,
		"method":      method,
		"status":      resp.StatusCode,
		"request_id":  requestID,
		"duration_ms": float64(time.Since(start)) / float64(time.Millisecond),
	}).Debug("collection request")

	if rejected(resp.StatusCode) {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		span.SetStatus(codes.Error, resp.Status)
		var cause error
		if text := strings.TrimSpace(string(msg)); text != "" {
			cause = errors.New(text)
		}
		return resp.StatusCode, resp.Header, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: cause}
	}

	if out != nil {
		dec := sonic.ConfigStd.NewDecoder(resp.Body)
		if err := dec.Decode(out); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode")
			return resp.StatusCode, resp.Header, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	span.SetStatus(codes.Ok, "")
	return resp.StatusCode, resp.Header, nil
}
