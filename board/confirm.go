package board

// DeletePrompt is the question asked before a task is deleted.
const DeletePrompt = "Are you sure you want to delete this task?"

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Confirmed approves every prompt.
var Confirmed Confirmer = ConfirmFunc(func(string) bool { return true })
