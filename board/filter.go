package board

import (
	"strings"

	"kanban/domain"
)

// Filter keeps the tasks whose title or description contains term
// (case-insensitive) and whose status matches status. An empty term matches
// everything; status "all" or "" matches every column. Order is preserved.
func Filter(tasks []domain.Task, term, status string) []domain.Task {
	needle := strings.ToLower(term)
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if !matchesStatus(t, status) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesStatus(t domain.Task, status string) bool {
	return status == "" || status == domain.StatusAll || string(t.Status) == status
}

// HasActiveFilters reports whether either filter narrows the board.
func HasActiveFilters(term, status string) bool {
	return term != "" || (status != "" && status != domain.StatusAll)
}

// Column is one status lane of the board.
type Column struct {
	Status domain.Status
	Title  string
	Tasks  []domain.Task
}

// Columns groups tasks into the three status lanes, keeping their order.
func Columns(tasks []domain.Task) []Column {
	cols := make([]Column, 0, len(domain.Statuses()))
	index := make(map[domain.Status]int, len(domain.Statuses()))
	for i, s := range domain.Statuses() {
		cols = append(cols, Column{Status: s, Title: s.Label(), Tasks: []domain.Task{}})
		index[s] = i
	}
	for _, t := range tasks {
		if i, ok := index[t.Status]; ok {
			cols[i].Tasks = append(cols[i].Tasks, t)
		}
	}
	return cols
}
