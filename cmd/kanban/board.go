package main

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"kanban/api"
	"kanban/board"
)

func newBoardCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Serve the board in the browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.BoardAddr
			}
			if _, err := store.Reload(cmd.Context()); err != nil {
				a.logger.WithField("api_url", a.cfg.APIURL).Warn("collection unavailable at startup; the board retries on every page load")
			}

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Recover())
			if err := api.Register(e, store, board.NewDragController(store, a.logger), a.logger); err != nil {
				return err
			}
			return serve(cmd.Context(), e, addr, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default BOARD_ADDR or :8080)")
	return cmd
}
