package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban/domain"
)

// Change types published by Journal.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Change is the message enqueued after a successful write.
type Change struct {
	Type   string        `json:"type"`
	ID     domain.ID     `json:"id"`
	Status domain.Status `json:"status,omitempty"`
	Time   string        `json:"time"`
}

type enqueuer interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Journal wraps a Backend and publishes one Change per write to an Azure
// queue. Publishing failures are logged; the write itself has already
// succeeded and is not undone.
type Journal struct {
	Backend
	queue  enqueuer
	logger *log.Logger
	now    func() time.Time
}

// NewQueueClient connects to the named queue.
func NewQueueClient(connStr, queue string) (*azqueue.QueueClient, error) {
	if connStr == "" {
		return nil, errors.New("storage: missing storage connection string")
	}
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return azqueue.NewQueueClientFromConnectionString(connStr, queue, &opts)
}

// NewJournal publishes changes made through base to queue.
func NewJournal(base Backend, queue enqueuer, logger *log.Logger) *Journal {
	if base == nil {
		panic("storage.NewJournal: base backend is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Journal{Backend: base, queue: queue, logger: logger, now: time.Now}
}

func (j *Journal) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := j.Backend.Insert(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	j.publish(ctx, Change{Type: ChangeCreated, ID: created.ID, Status: created.Status})
	return created, nil
}

func (j *Journal) Replace(ctx context.Context, id domain.ID, t domain.Task) (domain.Task, error) {
	updated, err := j.Backend.Replace(ctx, id, t)
	if err != nil {
		return domain.Task{}, err
	}
	j.publish(ctx, Change{Type: ChangeUpdated, ID: id, Status: updated.Status})
	return updated, nil
}

func (j *Journal) Delete(ctx context.Context, id domain.ID) error {
	if err := j.Backend.Delete(ctx, id); err != nil {
		return err
	}
	j.publish(ctx, Change{Type: ChangeDeleted, ID: id})
	return nil
}

func (j *Journal) publish(ctx context.Context, c Change) {
	if j.queue == nil {
		return
	}
	c.Time = j.now().UTC().Format(domain.TimestampLayout)
	fields := log.Fields{"op": "journal", "task_id": c.ID, "change": c.Type}
	data, err := sonic.ConfigStd.Marshal(c)
	if err != nil {
		j.logger.WithFields(fields).WithError(err).Error("encode change")
		return
	}
	if _, err := j.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
		j.logger.WithFields(fields).WithError(err).Error("enqueue change")
		return
	}
	j.logger.WithFields(fields).Debug("change enqueued")
}
