package storage

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// fakeTable keeps entities as property maps, the way the table service
// merges them.
type fakeTable struct {
	mu       sync.Mutex
	entities map[string]map[string]any
	listErr  error
}

func newFakeTable() *fakeTable {
	return &fakeTable{entities: map[string]map[string]any{}}
}

func respErr(status int, code string) error {
	return &azcore.ResponseError{StatusCode: status, ErrorCode: code, RawResponse: &http.Response{StatusCode: status}}
}

func (f *fakeTable) NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.listErr != nil {
				return aztables.ListEntitiesResponse{}, f.listErr
			}
			var resp aztables.ListEntitiesResponse
			for _, props := range f.entities {
				data, err := sonic.ConfigStd.Marshal(props)
				if err != nil {
					return aztables.ListEntitiesResponse{}, err
				}
				resp.Entities = append(resp.Entities, data)
			}
			return resp, nil
		},
	})
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, opts *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props, ok := f.entities[pk+"/"+rk]
	if !ok {
		return aztables.GetEntityResponse{}, respErr(404, "ResourceNotFound")
	}
	data, err := sonic.ConfigStd.Marshal(props)
	if err != nil {
		return aztables.GetEntityResponse{}, err
	}
	return aztables.GetEntityResponse{Value: data}, nil
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, opts *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	props, err := decodeProps(entity)
	if err != nil {
		return aztables.AddEntityResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := props["PartitionKey"].(string) + "/" + props["RowKey"].(string)
	if _, ok := f.entities[k]; ok {
		return aztables.AddEntityResponse{}, respErr(409, "EntityAlreadyExists")
	}
	f.entities[k] = props
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	props, err := decodeProps(entity)
	if err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := props["PartitionKey"].(string) + "/" + props["RowKey"].(string)
	current, ok := f.entities[k]
	if !ok {
		return aztables.UpdateEntityResponse{}, respErr(404, "ResourceNotFound")
	}
	for name, v := range props {
		current[name] = v
	}
	return aztables.UpdateEntityResponse{}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, opts *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := pk + "/" + rk
	if _, ok := f.entities[k]; !ok {
		return aztables.DeleteEntityResponse{}, respErr(404, "ResourceNotFound")
	}
	delete(f.entities, k)
	return aztables.DeleteEntityResponse{}, nil
}

func decodeProps(entity []byte) (map[string]any, error) {
	var props map[string]any
	if err := sonic.ConfigStd.Unmarshal(entity, &props); err != nil {
		return nil, err
	}
	return props, nil
}

func newTestTablesBackend(table tableClient) *TablesBackend {
	b := newTablesBackend(table)
	var tick int64
	b.now = func() time.Time {
		tick++
		return time.Unix(0, tick)
	}
	return b
}

func TestTablesBackendContract(t *testing.T) {
	testBackendContract(t, newTestTablesBackend(newFakeTable()))
}

func TestTablesBackendWritesPartitionAndSeq(t *testing.T) {
	table := newFakeTable()
	b := newTestTablesBackend(table)
	if _, err := b.Insert(context.Background(), task("1", "Write the quarterly report", "todo")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	props, ok := table.entities[TasksPartition+"/1"]
	if !ok {
		t.Fatalf("entity not stored under partition %q: %#v", TasksPartition, table.entities)
	}
	if props["Seq"] != "00000000000000000001" {
		t.Fatalf("unexpected seq %#v", props["Seq"])
	}
	if props["CreatedAt"] != "2024-01-01T00:00:00.000Z" {
		t.Fatalf("unexpected createdAt %#v", props["CreatedAt"])
	}
}

func TestTablesBackendListError(t *testing.T) {
	table := newFakeTable()
	table.listErr = errors.New("boom")
	if _, err := newTestTablesBackend(table).List(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestMapTableError(t *testing.T) {
	if err := mapTableError(respErr(404, "ResourceNotFound")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mapTableError(respErr(409, "EntityAlreadyExists")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	plain := errors.New("network down")
	if err := mapTableError(plain); !errors.Is(err, plain) {
		t.Fatalf("expected passthrough, got %v", err)
	}
}
