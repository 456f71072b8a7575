package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestDraftValidate(t *testing.T) {
	tests := []struct {
		name       string
		draft      Draft
		wantFields []string
	}{
		{name: "valid", draft: Draft{Title: "Buy groceries for the week", Description: "milk, eggs", Status: StatusTodo}},
		{name: "title at lower bound", draft: Draft{Title: strings.Repeat("a", TitleMinLen), Status: StatusDone}},
		{name: "title at upper bound", draft: Draft{Title: strings.Repeat("a", TitleMaxLen), Status: StatusDone}},
		{name: "title too short", draft: Draft{Title: "Fix bug", Status: StatusTodo}, wantFields: []string{"title"}},
		{name: "title too long", draft: Draft{Title: strings.Repeat("a", TitleMaxLen+1), Status: StatusTodo}, wantFields: []string{"title"}},
		{name: "missing title", draft: Draft{Status: StatusTodo}, wantFields: []string{"title"}},
		{name: "description too long", draft: Draft{Title: "Buy groceries for the week", Description: strings.Repeat("d", DescriptionMaxLen+1), Status: StatusTodo}, wantFields: []string{"description"}},
		{name: "bad status", draft: Draft{Title: "Buy groceries for the week", Status: "blocked"}, wantFields: []string{"status"}},
		{name: "everything wrong", draft: Draft{Title: "x", Description: strings.Repeat("d", 201), Status: "nope"}, wantFields: []string{"title", "description", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Validate()
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Fields) != len(tt.wantFields) {
				t.Fatalf("unexpected fields: %#v", verr.Fields)
			}
			for _, f := range tt.wantFields {
				if verr.Fields[f] == "" {
					t.Fatalf("expected message for %s, got %#v", f, verr.Fields)
				}
			}
		})
	}
}

func TestTitleMessageMatchesEnforcedBound(t *testing.T) {
	err := Draft{Title: strings.Repeat("a", 31), Status: StatusTodo}.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := verr.Fields["title"]; got != "title must be at most 30 characters" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestTitleBoundCountsCharactersNotBytes(t *testing.T) {
	title := strings.Repeat("é", TitleMaxLen)
	if err := (Draft{Title: title, Status: StatusTodo}).Validate(); err != nil {
		t.Fatalf("expected 30 accented characters to be accepted: %v", err)
	}
}

func TestPatchValidateChecksOnlySetFields(t *testing.T) {
	status := StatusDone
	if err := (Patch{Status: &status}).Validate(); err != nil {
		t.Fatalf("status-only patch should be valid: %v", err)
	}

	short := "Fix bug"
	bad := Status("later")
	err := Patch{Title: &short, Status: &bad}.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["title"] == "" || verr.Fields["status"] == "" {
		t.Fatalf("unexpected fields: %#v", verr.Fields)
	}
	if _, ok := verr.Fields["description"]; ok {
		t.Fatalf("description was not patched: %#v", verr.Fields)
	}
}

func TestDraftNormalize(t *testing.T) {
	d := Draft{Title: "  Buy groceries for the week ", Description: " milk "}.Normalize()
	if d.Title != "Buy groceries for the week" || d.Description != "milk" {
		t.Fatalf("unexpected draft: %+v", d)
	}
	if d.Status != StatusTodo {
		t.Fatalf("expected default status todo, got %q", d.Status)
	}
}
