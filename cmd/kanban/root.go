package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban/board"
	"kanban/client"
	"kanban/config"
)

type app struct {
	configPath string
	apiURL     string
	cfg        config.Config
	logger     *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "kanban",
		Short:        "Single-user kanban board",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Serve the collection on :3001 and the board on :8080
  kanban backend
  kanban board

  # Script the board from a shell
  kanban tasks create --title "Write the quarterly report"
  kanban tasks move 3 done
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		if a.apiURL != "" {
			cfg.APIURL = a.apiURL
		}
		a.cfg = cfg
		a.logger = newLogger(cfg, cmd.ErrOrStderr())
		return nil
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a TOML config file (default $"+config.EnvConfigFile+")")
	cmd.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Task collection URL (overrides KANBAN_API_URL)")

	cmd.AddCommand(newBoardCmd(a))
	cmd.AddCommand(newBackendCmd(a))
	cmd.AddCommand(newStorageInitCmd(a))
	cmd.AddCommand(newTasksCmd(a))
	return cmd
}

func newLogger(cfg config.Config, out io.Writer) *log.Logger {
	logger := log.New()
	logger.SetOutput(out)
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if strings.EqualFold(cfg.LogFormat, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

// newStore builds the task store over the configured collection.
func (a *app) newStore() (*board.Store, error) {
	mode, err := client.ParseIDMode(a.cfg.IDMode)
	if err != nil {
		return nil, err
	}
	c := client.New(a.cfg.APIURL,
		client.WithHTTPClient(&http.Client{Timeout: a.cfg.HTTPTimeout}),
		client.WithLogger(a.logger),
		client.WithIDMode(mode),
	)
	return board.NewStore(c, a.logger), nil
}

// serve runs e on addr until the command context is cancelled or the process
// receives SIGINT/SIGTERM.
func serve(ctx context.Context, e *echo.Echo, addr string, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("listening")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
