package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

// provisionStep creates one Azure resource. existsCode is the service error
// code that means the resource is already there.
type provisionStep struct {
	kind       string
	name       string
	existsCode string
	create     func(ctx context.Context, name string) error
}

// Provision makes sure the tasks table and, when queue is set, the change
// queue exist in the storage account behind connStr. Running it again is
// harmless.
func Provision(ctx context.Context, connStr, table, queue string, logger *log.Logger) error {
	if logger == nil {
		logger = log.StandardLogger()
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return fmt.Errorf("table service: %w", err)
	}
	steps := []provisionStep{
		{
			kind:       "table",
			name:       table,
			existsCode: string(aztables.TableAlreadyExists),
			create: func(ctx context.Context, name string) error {
				_, err := svc.CreateTable(ctx, name, nil)
				return err
			},
		},
		{
			kind:       "queue",
			name:       queue,
			existsCode: queueAlreadyExists,
			create: func(ctx context.Context, name string) error {
				q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
				if err != nil {
					return err
				}
				_, err = q.Create(ctx, nil)
				return err
			},
		},
	}
	return provision(ctx, steps, logger)
}

func provision(ctx context.Context, steps []provisionStep, logger *log.Logger) error {
	for _, s := range steps {
		if s.name == "" {
			continue
		}
		fields := log.Fields{"kind": s.kind, "name": s.name}
		err := s.create(ctx, s.name)
		switch {
		case err == nil:
			logger.WithFields(fields).Info("storage resource created")
		case alreadyExists(err, s.existsCode):
			logger.WithFields(fields).Debug("storage resource already exists")
		default:
			return fmt.Errorf("create %s %s: %w", s.kind, s.name, err)
		}
	}
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
