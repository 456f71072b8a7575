package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"kanban/domain"
)

// TasksPartition is the partition key every task entity is stored under.
const TasksPartition = "tasks"

type tableClient interface {
	NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	GetEntity(ctx context.Context, partitionKey, rowKey string, opts *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, opts *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, opts *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// TablesBackend stores tasks as entities of one Azure Table partition, keyed
// by id. Seq records insertion order, which the service does not keep.
type TablesBackend struct {
	table tableClient
	now   func() time.Time
}

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Seq          string `json:"Seq,omitempty"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	Status       string `json:"Status"`
	CreatedAt    string `json:"CreatedAt"`
}

// NewTablesBackend connects to table using connStr.
func NewTablesBackend(connStr, table string) (*TablesBackend, error) {
	if connStr == "" {
		return nil, errors.New("storage: missing storage connection string")
	}
	if table == "" {
		return nil, errors.New("storage: missing tasks table name")
	}
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTablesBackend(svc.NewClient(table)), nil
}

func newTablesBackend(table tableClient) *TablesBackend {
	return &TablesBackend{table: table, now: time.Now}
}

func (b *TablesBackend) List(ctx context.Context) ([]domain.Task, error) {
	ents, err := b.entities(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(ents))
	for _, e := range ents {
		tasks = append(tasks, e.task())
	}
	return tasks, nil
}

func (b *TablesBackend) Get(ctx context.Context, id domain.ID) (domain.Task, error) {
	resp, err := b.table.GetEntity(ctx, TasksPartition, key(id), nil)
	if err != nil {
		return domain.Task{}, mapTableError(err)
	}
	var ent taskEntity
	if err := sonic.ConfigStd.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.task(), nil
}

func (b *TablesBackend) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID.IsZero() {
		return domain.Task{}, errors.New("storage: insert without id")
	}
	ent := entityOf(t)
	ent.Seq = fmt.Sprintf("%020d", b.now().UnixNano())
	payload, err := sonic.ConfigStd.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := b.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, mapTableError(err)
	}
	return t, nil
}

// Replace merges the task's properties into the stored entity so Seq is
// kept. A missing entity yields ErrNotFound.
func (b *TablesBackend) Replace(ctx context.Context, id domain.ID, t domain.Task) (domain.Task, error) {
	t.ID = id
	payload, err := sonic.ConfigStd.Marshal(entityOf(t))
	if err != nil {
		return domain.Task{}, err
	}
	et := azcore.ETagAny
	_, err = b.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		return domain.Task{}, mapTableError(err)
	}
	return t, nil
}

func (b *TablesBackend) Delete(ctx context.Context, id domain.ID) error {
	if _, err := b.table.DeleteEntity(ctx, TasksPartition, key(id), nil); err != nil {
		return mapTableError(err)
	}
	return nil
}

func (b *TablesBackend) NextID(ctx context.Context) (domain.ID, error) {
	tasks, err := b.List(ctx)
	if err != nil {
		return "", err
	}
	return nextID(tasks), nil
}

func (b *TablesBackend) Close() error { return nil }

func (b *TablesBackend) entities(ctx context.Context) ([]taskEntity, error) {
	filter := "PartitionKey eq '" + TasksPartition + "'"
	pager := b.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	ents := []taskEntity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError(err)
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := sonic.ConfigStd.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			ents = append(ents, ent)
		}
	}
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Seq < ents[j].Seq })
	return ents, nil
}

func entityOf(t domain.Task) taskEntity {
	return taskEntity{
		PartitionKey: TasksPartition,
		RowKey:       key(t.ID),
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt,
	}
}

func (e taskEntity) task() domain.Task {
	return domain.Task{
		ID:          domain.ParseID(e.RowKey),
		Title:       e.Title,
		Description: e.Description,
		Status:      domain.Status(e.Status),
		CreatedAt:   e.CreatedAt,
	}
}

func mapTableError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return ErrNotFound
		case 409:
			return ErrConflict
		}
		return fmt.Errorf("storage: table request failed with status %d: %w", respErr.StatusCode, err)
	}
	return err
}
