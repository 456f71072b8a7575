package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

const flashCookie = "kanban_flash"

// Flash is a one-shot notification shown on the next rendered page.
type Flash struct {
	Level   string
	Message string
}

func setFlash(c echo.Context, level, message string) {
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(level + ":" + message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlash reads and clears the pending notification.
func takeFlash(c echo.Context) *Flash {
	cookie, err := c.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	c.SetCookie(&http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	level, msg, ok := strings.Cut(raw, ":")
	if !ok || msg == "" {
		return nil
	}
	return &Flash{Level: level, Message: msg}
}
