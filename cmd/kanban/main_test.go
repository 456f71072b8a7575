package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"kanban/config"
	"kanban/domain"
	"kanban/server"
	"kanban/storage"
)

func newCollection(t *testing.T) (*httptest.Server, storage.Backend) {
	t.Helper()
	backend, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	logger, _ := test.NewNullLogger()
	e := echo.New()
	server.Register(e, backend, nil, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, backend
}

func run(t *testing.T, apiURL, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigFile, "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api-url", apiURL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandTree(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"board", "backend", "storage-init", "tasks"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("missing subcommand %q: %v", name, err)
		}
	}
	for _, name := range []string{"list", "get", "create", "update", "move", "delete"} {
		if sub, _, err := cmd.Find([]string{"tasks", name}); err != nil || sub.Name() != name {
			t.Fatalf("missing tasks subcommand %q: %v", name, err)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Fatal("expected --config flag")
	}
}

func TestTasksLifecycle(t *testing.T) {
	srv, backend := newCollection(t)
	url := srv.URL + "/tasks"

	out, err := run(t, url, "", "tasks", "create", "--title", "Write the quarterly report", "--description", "numbers")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "Write the quarterly report") || !strings.Contains(out, "todo") {
		t.Fatalf("unexpected create output:\n%s", out)
	}

	out, err = run(t, url, "", "tasks", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out, "ID") || !strings.Contains(out, "Write the quarterly report") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	if _, err := run(t, url, "", "tasks", "move", "1", "done"); err != nil {
		t.Fatalf("move: %v", err)
	}
	stored, err := backend.Get(context.Background(), "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusDone || stored.Description != "numbers" {
		t.Fatalf("unexpected stored task: %+v", stored)
	}

	out, err = run(t, url, "", "tasks", "move", "1", "done")
	if err != nil || !strings.Contains(out, "already in Done") {
		t.Fatalf("expected no-op move, got %q, %v", out, err)
	}

	out, err = run(t, url, "", "tasks", "list", "--status", "todo")
	if err != nil || !strings.Contains(out, "No tasks found.") {
		t.Fatalf("expected empty filtered list, got %q, %v", out, err)
	}
}

func TestTasksCreateValidation(t *testing.T) {
	srv, backend := newCollection(t)
	_, err := run(t, srv.URL+"/tasks", "", "tasks", "create", "--title", "Too short")
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	tasks, _ := backend.List(context.Background())
	if len(tasks) != 0 {
		t.Fatalf("nothing should be stored: %#v", tasks)
	}
}

func TestTasksUpdateRequiresAField(t *testing.T) {
	srv, _ := newCollection(t)
	if _, err := run(t, srv.URL+"/tasks", "", "tasks", "update", "1"); err == nil {
		t.Fatal("expected error for empty update")
	}
}

func TestTasksUpdateKeepsCreatedAt(t *testing.T) {
	srv, backend := newCollection(t)
	ctx := context.Background()
	if _, err := backend.Insert(ctx, domain.Task{ID: "1", Title: "Write the quarterly report", Status: domain.StatusTodo, CreatedAt: "2024-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := run(t, srv.URL+"/tasks", "", "tasks", "update", "1", "--description", "with charts"); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, _ := backend.Get(ctx, "1")
	if stored.CreatedAt != "2024-01-01T00:00:00Z" || stored.Description != "with charts" || stored.Title != "Write the quarterly report" {
		t.Fatalf("unexpected stored task: %+v", stored)
	}
}

func TestTasksDeletePrompts(t *testing.T) {
	srv, backend := newCollection(t)
	url := srv.URL + "/tasks"
	ctx := context.Background()
	if _, err := backend.Insert(ctx, domain.Task{ID: "1", Title: "Write the quarterly report", Status: domain.StatusTodo}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := run(t, url, "n\n", "tasks", "delete", "1")
	if err != nil || !strings.Contains(out, "Aborted.") {
		t.Fatalf("expected abort, got %q, %v", out, err)
	}
	if _, err := backend.Get(ctx, "1"); err != nil {
		t.Fatalf("task should survive a declined delete: %v", err)
	}

	out, err = run(t, url, "y\n", "tasks", "delete", "1")
	if err != nil || !strings.Contains(out, "Deleted task 1.") {
		t.Fatalf("expected delete, got %q, %v", out, err)
	}

	if _, err := run(t, url, "", "tasks", "delete", "--yes", "1"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"yes", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var prompt bytes.Buffer
		got := promptConfirmer(strings.NewReader(tt.input), &prompt).Confirm("Delete?")
		if got != tt.want {
			t.Errorf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if prompt.String() != "Delete? [y/N] " {
			t.Errorf("unexpected prompt %q", prompt.String())
		}
	}
}
