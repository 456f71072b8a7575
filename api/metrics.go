package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "kanban/api"
	metricsMessage    = "board.request.metrics"
	metricsContextKey = "board.metrics"
)

type requestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	route         string
	storeDuration time.Duration
	tasksShown    int
	errorStage    string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "board.request", trace.WithAttributes(
		attribute.String("http.route", route),
	))
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
	}, ctx
}

func (m *requestMetrics) ObserveStore(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.storeDuration += d
}

func (m *requestMetrics) SetTasksShown(n int) {
	if m == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	m.tasksShown = n
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := time.Since(m.start)

	m.span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int("kanban.tasks_shown", m.tasksShown),
	)
	if m.errorStage != "" {
		m.span.SetAttributes(attribute.String("kanban.error_stage", m.errorStage))
	}
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	} else if m.errorStage != "" {
		m.span.SetStatus(codes.Error, m.errorStage)
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":       m.route,
		"status":      status,
		"total_ms":    durationToMillis(total),
		"tasks_shown": m.tasksShown,
	}
	if m.storeDuration > 0 {
		fields["store_ms"] = durationToMillis(m.storeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info(metricsMessage)
}

// RequestMetrics opens a span for every request and logs a metrics entry
// when the handler returns.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			m, ctx := newRequestMetrics(c.Request().Context(), logger, route)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			m.Log(status, err)
			return err
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
