package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kanban/domain"
)

func TestFileBackendContract(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	testBackendContract(t, b)
}

func TestFileBackendPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	b, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if _, err := b.Insert(ctx, task("1", "Write the quarterly report", domain.StatusTodo)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"tasks"`) || !strings.Contains(string(data), `"id": 1`) {
		t.Fatalf("unexpected document: %s", data)
	}

	reopened, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	tasks, _ := reopened.List(ctx)
	if len(tasks) != 1 || tasks[0].Title != "Write the quarterly report" {
		t.Fatalf("unexpected tasks after reopen: %#v", tasks)
	}
}

func TestFileBackendLoadsMixedIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	doc := `{"tasks":[
		{"id": 1, "title": "Write the quarterly report", "description": "", "status": "todo", "createdAt": "2024-01-01T00:00:00Z"},
		{"id": "2", "title": "Review the pull requests", "description": "", "status": "done", "createdAt": "2024-01-02T00:00:00Z"}
	]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if _, err := b.Get(ctx, "2"); err != nil {
		t.Fatalf("string id must match numeric lookup: %v", err)
	}
	if id, _ := b.NextID(ctx); id != "3" {
		t.Fatalf("unexpected next id %q", id)
	}
}

func TestFileBackendRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileBackend(path); err == nil {
		t.Fatal("expected decode error")
	}
}
