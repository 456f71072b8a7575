package main

import (
	"errors"

	"github.com/spf13/cobra"

	"kanban/storage"
)

func newStorageInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "storage-init",
		Short: "Create the Azure table and queue used by the tables backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			connStr := a.cfg.StorageConnectionString
			if connStr == "" {
				return errors.New("missing STORAGE_CONNECTION_STRING")
			}
			a.logger.Info("storage init starting")
			if err := storage.Provision(cmd.Context(), connStr, a.cfg.TasksTable, a.cfg.ChangeQueue, a.logger); err != nil {
				return err
			}
			a.logger.Info("storage init complete")
			return nil
		},
	}
}
