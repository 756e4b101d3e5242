package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

type fakeRow struct {
	data []byte
	etag int
}

// fakeTable mimics the ETag behaviour of an Azure table. It ignores list
// filters, which the store re-checks in process anyway.
type fakeTable struct {
	mu      sync.Mutex
	rows    map[string]fakeRow
	order   []string
	version int

	submits  int
	onSubmit func()
	// afterWrite runs once after the next successful single-row write.
	afterWrite func(id string)
	failRow    string
	filters    []string
}

func newFakeTable() *fakeTable { return &fakeTable{rows: map[string]fakeRow{}} }

func rowKeyOf(payload []byte) (string, error) {
	var ent entity
	if err := json.Unmarshal(payload, &ent); err != nil {
		return "", err
	}
	return ent.PartitionKey + "/" + ent.RowKey, nil
}

func etagOf(v int) azcore.ETag { return azcore.ETag(strconv.Itoa(v)) }

func statusErr(code int) error { return &azcore.ResponseError{StatusCode: code} }

func (f *fakeTable) putLocked(id string, payload []byte) azcore.ETag {
	if _, ok := f.rows[id]; !ok {
		f.order = append(f.order, id)
	}
	f.version++
	f.rows[id] = fakeRow{data: append([]byte(nil), payload...), etag: f.version}
	return etagOf(f.version)
}

func (f *fakeTable) checkLocked(id string, ifMatch *azcore.ETag, mustExist, mustNotExist bool) error {
	if id == f.failRow {
		return statusErr(500)
	}
	row, ok := f.rows[id]
	if mustNotExist && ok {
		return statusErr(409)
	}
	if mustExist && !ok {
		return statusErr(404)
	}
	if ifMatch != nil && *ifMatch != azcore.ETagAny && ok && etagOf(row.etag) != *ifMatch {
		return statusErr(412)
	}
	return nil
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[pk+"/"+rk]
	if !ok {
		return aztables.GetEntityResponse{}, statusErr(404)
	}
	return aztables.GetEntityResponse{ETag: etagOf(row.etag), Value: append([]byte(nil), row.data...)}, nil
}

func (f *fakeTable) AddEntity(ctx context.Context, payload []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	id, err := rowKeyOf(payload)
	if err != nil {
		return aztables.AddEntityResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(id, nil, false, true); err != nil {
		return aztables.AddEntityResponse{}, err
	}
	resp := aztables.AddEntityResponse{ETag: f.putLocked(id, payload)}
	f.wroteLocked(id)
	return resp, nil
}

func (f *fakeTable) wroteLocked(id string) {
	if f.afterWrite == nil {
		return
	}
	hook := f.afterWrite
	f.afterWrite = nil
	f.mu.Unlock()
	hook(id)
	f.mu.Lock()
}

func (f *fakeTable) UpdateEntity(ctx context.Context, payload []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	id, err := rowKeyOf(payload)
	if err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var ifMatch *azcore.ETag
	if o != nil {
		ifMatch = o.IfMatch
	}
	if err := f.checkLocked(id, ifMatch, true, false); err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	resp := aztables.UpdateEntityResponse{ETag: f.putLocked(id, payload)}
	f.wroteLocked(id)
	return resp, nil
}

func (f *fakeTable) UpsertEntity(ctx context.Context, payload []byte, _ *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	id, err := rowKeyOf(payload)
	if err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failRow {
		return aztables.UpsertEntityResponse{}, statusErr(500)
	}
	return aztables.UpsertEntityResponse{ETag: f.putLocked(id, payload)}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	id := pk + "/" + rk
	f.mu.Lock()
	defer f.mu.Unlock()
	var ifMatch *azcore.ETag
	if o != nil {
		ifMatch = o.IfMatch
	}
	if err := f.checkLocked(id, ifMatch, true, false); err != nil {
		return aztables.DeleteEntityResponse{}, err
	}
	delete(f.rows, id)
	for i, k := range f.order {
		if k == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return aztables.DeleteEntityResponse{}, nil
}

func (f *fakeTable) SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, _ *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
	if f.onSubmit != nil {
		hook := f.onSubmit
		f.onSubmit = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	ids := make([]string, len(actions))
	for i, a := range actions {
		id, err := rowKeyOf(a.Entity)
		if err != nil {
			return aztables.TransactionResponse{}, err
		}
		ids[i] = id
		switch a.ActionType {
		case aztables.TransactionTypeAdd:
			err = f.checkLocked(id, nil, false, true)
		case aztables.TransactionTypeUpdateReplace, aztables.TransactionTypeUpdateMerge:
			err = f.checkLocked(id, a.IfMatch, true, false)
		case aztables.TransactionTypeInsertReplace, aztables.TransactionTypeInsertMerge:
			if id == f.failRow {
				err = statusErr(500)
			}
		default:
			err = errors.New("unsupported action")
		}
		if err != nil {
			return aztables.TransactionResponse{}, err
		}
	}
	for i, a := range actions {
		f.putLocked(ids[i], a.Entity)
	}
	return aztables.TransactionResponse{}, nil
}

func (f *fakeTable) NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	f.mu.Lock()
	if o != nil && o.Filter != nil {
		f.filters = append(f.filters, *o.Filter)
	}
	entities := make([][]byte, 0, len(f.order))
	for _, id := range f.order {
		entities = append(entities, append([]byte(nil), f.rows[id].data...))
	}
	f.mu.Unlock()

	fetched := false
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return !fetched },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			fetched = true
			return aztables.ListEntitiesResponse{Entities: entities}, nil
		},
	})
}

// bump rewrites a row in place, as a concurrent writer would.
func (f *fakeTable) bump(pk, rk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := pk + "/" + rk
	if row, ok := f.rows[id]; ok {
		f.putLocked(id, row.data)
	}
}

func (f *fakeTable) raw(pk, rk string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[pk+"/"+rk]
	if !ok {
		return nil
	}
	return row.data
}
