package domain

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// TimestampLayout matches the ISO-8601 form browsers produce for createdAt.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Status is the column a task belongs to.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inProgress"
	StatusDone       Status = "done"
)

// StatusAll is the status filter value that matches every column.
const StatusAll = "all"

// Statuses returns the board columns in display order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone}
}

// Valid reports whether s is one of the three board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Label is the column title shown on the board.
func (s Status) Label() string {
	switch s {
	case StatusTodo:
		return "To do"
	case StatusInProgress:
		return "In progress"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// Task represents a single card on the board.
type Task struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	// CreatedAt is kept as the exact string the backend stored so updates
	// write it back byte for byte.
	CreatedAt string `json:"createdAt"`

	// quotedID records that the backend sent the id as a JSON string.
	quotedID bool
}

type taskWire struct {
	ID          any    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

// rawToken captures a JSON value undecoded.
type rawToken []byte

func (r *rawToken) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// MarshalJSON writes the id with the JSON type it was read with, so a string
// id such as "12" is not turned into the number 12 on update.
func (t Task) MarshalJSON() ([]byte, error) {
	var id any = t.ID
	if t.quotedID {
		id = t.ID.String()
	}
	return sonic.ConfigStd.Marshal(taskWire{
		ID:          id,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
	})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var w struct {
		ID          rawToken `json:"id"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Status      Status   `json:"status"`
		CreatedAt   string   `json:"createdAt"`
	}
	if err := sonic.ConfigStd.Unmarshal(data, &w); err != nil {
		return err
	}
	var id ID
	if err := id.UnmarshalJSON(w.ID); err != nil {
		return err
	}
	raw := bytes.TrimSpace(w.ID)
	*t = Task{
		ID:          id,
		Title:       w.Title,
		Description: w.Description,
		Status:      w.Status,
		CreatedAt:   w.CreatedAt,
		quotedID:    len(raw) > 0 && raw[0] == '"',
	}
	return nil
}

// Created parses CreatedAt for display.
func (t Task) Created() (time.Time, bool) {
	if t.CreatedAt == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, TimestampLayout} {
		if ts, err := time.Parse(layout, t.CreatedAt); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Draft is the user-editable part of a task.
type Draft struct {
	Title       string `json:"title" validate:"required,min=15,max=30"`
	Description string `json:"description" validate:"max=200"`
	Status      Status `json:"status" validate:"required,oneof=todo inProgress done"`
}

// Normalize trims the free-text fields and defaults the status to todo.
func (d Draft) Normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	if strings.TrimSpace(string(d.Status)) == "" {
		d.Status = StatusTodo
	}
	return d
}

// DraftOf returns the editable fields of t.
func DraftOf(t Task) Draft {
	return Draft{Title: t.Title, Description: t.Description, Status: t.Status}
}

// Patch carries the fields of an update; nil fields keep their stored value.
type Patch struct {
	Title       *string
	Description *string
	Status      *Status
}

// PatchOf turns a full draft into a patch touching every editable field.
func PatchOf(d Draft) Patch {
	return Patch{Title: &d.Title, Description: &d.Description, Status: &d.Status}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil
}

// Apply merges p into a copy of t. ID and CreatedAt are never touched.
func (t Task) Apply(p Patch) Task {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	return t
}
