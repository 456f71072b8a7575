package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"kanban/board"
	"kanban/domain"
)

type tasksOptions struct {
	json bool
}

func newTasksCmd(a *app) *cobra.Command {
	opts := &tasksOptions{}
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Read and change tasks from the command line",
	}
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print tasks as JSON")

	cmd.AddCommand(newTasksListCmd(a, opts))
	cmd.AddCommand(newTasksGetCmd(a, opts))
	cmd.AddCommand(newTasksCreateCmd(a, opts))
	cmd.AddCommand(newTasksUpdateCmd(a, opts))
	cmd.AddCommand(newTasksMoveCmd(a, opts))
	cmd.AddCommand(newTasksDeleteCmd(a))
	return cmd
}

func newTasksListCmd(a *app, opts *tasksOptions) *cobra.Command {
	var term, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore()
			if err != nil {
				return err
			}
			tasks, err := store.Reload(cmd.Context())
			if err != nil {
				return err
			}
			shown := board.Filter(tasks, term, status)
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), shown)
			}
			if len(shown) == 0 && board.HasActiveFilters(term, status) {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
				return err
			}
			return writeTable(cmd.OutOrStdout(), shown)
		},
	}
	cmd.Flags().StringVarP(&term, "query", "q", "", "Match title or description (case-insensitive)")
	cmd.Flags().StringVar(&status, "status", domain.StatusAll, "Column to show: all, todo, inProgress or done")
	return cmd
}

func newTasksGetCmd(a *app, opts *tasksOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore()
			if err != nil {
				return err
			}
			task, err := store.Get(cmd.Context(), domain.ParseID(args[0]))
			if err != nil {
				return err
			}
			return printTask(cmd.OutOrStdout(), task, opts.json)
		},
	}
}

func newTasksCreateCmd(a *app, opts *tasksOptions) *cobra.Command {
	var d domain.Draft
	var status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore()
			if err != nil {
				return err
			}
			d.Status = domain.Status(status)
			task, err := store.Create(cmd.Context(), d)
			if err != nil && task.ID.IsZero() {
				return err
			}
			if err != nil {
				a.logger.WithError(err).Warn("task created but the board could not be refreshed")
			}
			return printTask(cmd.OutOrStdout(), task, opts.json)
		},
	}
	cmd.Flags().StringVar(&d.Title, "title", "", "Task title (15-30 characters)")
	cmd.Flags().StringVar(&d.Description, "description", "", "Task description (up to 200 characters)")
	cmd.Flags().StringVar(&status, "status", string(domain.StatusTodo), "Column: todo, inProgress or done")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTasksUpdateCmd(a *app, opts *tasksOptions) *cobra.Command {
	var title, description, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.Patch
			flags := cmd.Flags()
			if flags.Changed("title") {
				p.Title = &title
			}
			if flags.Changed("description") {
				p.Description = &description
			}
			if flags.Changed("status") {
				s := domain.Status(status)
				p.Status = &s
			}
			if p.Empty() {
				return errors.New("nothing to update: pass --title, --description or --status")
			}
			store, err := a.newStore()
			if err != nil {
				return err
			}
			task, err := store.Update(cmd.Context(), domain.ParseID(args[0]), p)
			if err != nil && task.ID.IsZero() {
				return err
			}
			return printTask(cmd.OutOrStdout(), task, opts.json)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&status, "status", "", "New column")
	return cmd
}

// The move command replays a drag gesture so scripted moves follow the same
// path as the board.
func newTasksMoveCmd(a *app, opts *tasksOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			store, err := a.newStore()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := store.Reload(ctx); err != nil {
				return err
			}
			id := domain.ParseID(args[0])
			task, ok := store.Find(id)
			if !ok {
				return &domain.NotFoundError{ID: id}
			}

			drag := board.NewDragController(store, a.logger)
			drag.Start(task)
			drag.Enter(target)
			res, err := drag.Drop(ctx)
			if err != nil {
				return err
			}
			if !res.Moved && !opts.json {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Task %s is already in %s.\n", task.ID, target.Label())
				return err
			}
			return printTask(cmd.OutOrStdout(), res.Task, opts.json)
		},
	}
}

func newTasksDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore()
			if err != nil {
				return err
			}
			confirm := board.Confirmed
			if !yes {
				confirm = promptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
			}
			id := domain.ParseID(args[0])
			err = store.Delete(cmd.Context(), id, confirm)
			if errors.Is(err, domain.ErrConfirmationDeclined) {
				_, werr := fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return werr
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s.\n", id)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// promptConfirmer asks on out and accepts "y" or "yes" from in.
func promptConfirmer(in io.Reader, out io.Writer) board.Confirmer {
	r := bufio.NewReader(in)
	return board.ConfirmFunc(func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	})
}

func printTask(w io.Writer, t domain.Task, asJSON bool) error {
	if asJSON {
		return writeJSON(w, t)
	}
	return writeTable(w, []domain.Task{t})
}

func writeTable(w io.Writer, tasks []domain.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tCREATED")
	for _, t := range tasks {
		created := "-"
		if ts, ok := t.Created(); ok {
			created = ts.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Title, created)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
