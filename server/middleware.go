package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const headerRequestID = "X-Request-ID"

// requestBody caps request bodies at limit bytes and inflates gzip-encoded
// ones. The cap applies to the inflated stream; reads past it fail with
// *http.MaxBytesError.
func requestBody(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
				return next(c)
			}

			raw := req.Body
			zr, err := gzip.NewReader(raw)
			if err != nil {
				_ = raw.Close()
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid gzip body"})
			}
			req.Body = &inflatedBody{
				Reader: http.MaxBytesReader(c.Response(), io.NopCloser(zr), limit),
				zr:     zr,
				raw:    raw,
			}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type inflatedBody struct {
	io.Reader
	zr  *gzip.Reader
	raw io.Closer
}

func (b *inflatedBody) Close() error {
	err := b.zr.Close()
	if cerr := b.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// accessLog writes one collection.request entry per request, tagged with the
// caller's X-Request-ID when present.
func accessLog(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			entry := logger.WithFields(log.Fields{
				"method":      req.Method,
				"path":        req.URL.Path,
				"status":      c.Response().Status,
				"duration_ms": float64(time.Since(start)) / float64(time.Millisecond),
			})
			if id := req.Header.Get(headerRequestID); id != "" {
				entry = entry.WithField("request_id", id)
			}
			entry.Debug("collection.request")
			return nil
		}
	}
}
