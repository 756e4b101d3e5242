package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"conference-central/internal/domain"
)

// Maximum number of operations in a single table batch.
const maxBatchActions = 100

type rowID struct {
	pk string
	rk string
}

// readState is what a transaction saw of a row when it first read it.
type readState struct {
	exists bool
	etag   azcore.ETag
	value  []byte
}

type stagedWrite struct {
	id      rowID
	payload []byte
}

type tablesTx struct {
	store  *TablesStore
	reads  map[rowID]readState
	writes map[rowID][]byte
	order  []rowID
	err    error
}

// ErrPartialCommit reports a cross-group commit whose undo could not restore
// every row. The table may hold some of the transaction's writes.
var ErrPartialCommit = errors.New("cross-group commit left partial state")

// RunInTransaction stages the writes of fn and commits them. A single
// partition commits atomically as one table batch. Several partitions fail
// with ErrTransactionScopeExceeded unless cross-group transactions are
// enabled, in which case rows are written one by one with ETag guards and the
// rows already written are undone if a later row fails. That mode is not
// atomic: readers can observe the intermediate rows, and a failed undo is
// returned as ErrPartialCommit without retrying. ETag conflicts retry fn.
func (s *TablesStore) RunInTransaction(ctx context.Context, fn func(tx domain.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		tx := &tablesTx{store: s, reads: map[rowID]readState{}, writes: map[rowID][]byte{}}
		if err = fn(tx); err != nil {
			return err
		}
		if tx.err != nil {
			return tx.err
		}
		err = tx.commit(ctx)
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		log.WithField("attempt", attempt).Debug("table transaction conflict, retrying")
	}
	return err
}

func (t *tablesTx) read(ctx context.Context, id rowID) ([]byte, error) {
	if payload, ok := t.writes[id]; ok {
		return payload, nil
	}
	if st, ok := t.reads[id]; ok {
		if !st.exists {
			return nil, nil
		}
		return st.value, nil
	}
	data, etag, err := t.store.getEntity(ctx, id.pk, id.rk)
	if err != nil {
		return nil, err
	}
	t.reads[id] = readState{exists: data != nil, etag: etag, value: data}
	return data, nil
}

func (t *tablesTx) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	data, err := t.read(ctx, rowID{userID, profileRowKey})
	if err != nil || data == nil {
		return nil, err
	}
	p, err := decodeProfile(data)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *tablesTx) GetConference(ctx context.Context, key domain.ConferenceKey) (*domain.Conference, error) {
	data, err := t.read(ctx, rowID{key.Group(), conferenceRowKey(key.ID)})
	if err != nil || data == nil {
		return nil, err
	}
	c, err := decodeConference(data)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *tablesTx) stage(id rowID, payload []byte, err error) {
	if err != nil {
		if t.err == nil {
			t.err = err
		}
		return
	}
	if _, ok := t.writes[id]; !ok {
		t.order = append(t.order, id)
	}
	t.writes[id] = payload
}

func (t *tablesTx) PutProfile(p domain.Profile) {
	payload, err := encodeProfile(p)
	t.stage(rowID{p.UserID, profileRowKey}, payload, err)
}

func (t *tablesTx) PutConference(c domain.Conference) {
	payload, err := encodeConference(c)
	t.stage(rowID{c.Key.Group(), conferenceRowKey(c.Key.ID)}, payload, err)
}

func (t *tablesTx) commit(ctx context.Context) error {
	if len(t.order) == 0 {
		return nil
	}
	groups := map[string][]stagedWrite{}
	for _, id := range t.order {
		groups[id.pk] = append(groups[id.pk], stagedWrite{id: id, payload: t.writes[id]})
	}
	if len(groups) > t.store.maxGroups {
		return domain.ErrTransactionScopeExceeded
	}
	if len(groups) == 1 {
		for _, writes := range groups {
			return t.commitBatch(ctx, writes)
		}
	}
	if !t.store.crossGroup {
		return domain.ErrTransactionScopeExceeded
	}
	return t.commitOrdered(ctx, groups)
}

func (t *tablesTx) commitBatch(ctx context.Context, writes []stagedWrite) error {
	if len(writes) > maxBatchActions {
		return domain.ErrTransactionScopeExceeded
	}
	actions := make([]aztables.TransactionAction, 0, len(writes))
	for _, w := range writes {
		action := aztables.TransactionAction{ActionType: aztables.TransactionTypeInsertReplace, Entity: w.payload}
		if st, ok := t.reads[w.id]; ok {
			if st.exists {
				etag := st.etag
				action.ActionType = aztables.TransactionTypeUpdateReplace
				action.IfMatch = &etag
			} else {
				action.ActionType = aztables.TransactionTypeAdd
			}
		}
		actions = append(actions, action)
	}
	if _, err := t.store.table.SubmitTransaction(ctx, actions, nil); err != nil {
		return conflictOr(err)
	}
	return nil
}

var errNoPriorState = errors.New("no prior state recorded")

type committedWrite struct {
	id      rowID
	etag    azcore.ETag
	created bool
}

// commitOrdered writes partitions one after another in a stable order so that
// concurrent transactions over the same rows contend on the same first row.
func (t *tablesTx) commitOrdered(ctx context.Context, groups map[string][]stagedWrite) error {
	pks := make([]string, 0, len(groups))
	for pk := range groups {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	var done []committedWrite
	for _, pk := range pks {
		for _, w := range groups[pk] {
			cw, err := t.writeRow(ctx, w)
			if err != nil {
				if undoErr := t.compensate(ctx, done); undoErr != nil {
					return fmt.Errorf("%w: write %s/%s: %v: %w", ErrPartialCommit, w.id.pk, w.id.rk, err, undoErr)
				}
				return conflictOr(err)
			}
			done = append(done, cw)
		}
	}
	return nil
}

func (t *tablesTx) writeRow(ctx context.Context, w stagedWrite) (committedWrite, error) {
	st, seen := t.reads[w.id]
	switch {
	case seen && st.exists:
		etag := st.etag
		resp, err := t.store.table.UpdateEntity(ctx, w.payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if err != nil {
			return committedWrite{}, err
		}
		return committedWrite{id: w.id, etag: resp.ETag}, nil
	case seen:
		resp, err := t.store.table.AddEntity(ctx, w.payload, nil)
		if err != nil {
			return committedWrite{}, err
		}
		return committedWrite{id: w.id, etag: resp.ETag, created: true}, nil
	default:
		resp, err := t.store.table.UpsertEntity(ctx, w.payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
		if err != nil {
			return committedWrite{}, err
		}
		return committedWrite{id: w.id, etag: resp.ETag}, nil
	}
}

// compensate restores rows written before a failure, newest first. A row
// changed again since our write is left alone and reported.
func (t *tablesTx) compensate(ctx context.Context, done []committedWrite) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		cw := done[i]
		etag := cw.etag
		var err error
		if cw.created {
			_, err = t.store.table.DeleteEntity(ctx, cw.id.pk, cw.id.rk, &aztables.DeleteEntityOptions{IfMatch: &etag})
		} else if st, ok := t.reads[cw.id]; ok && st.exists {
			_, err = t.store.table.UpdateEntity(ctx, st.value, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		} else {
			err = errNoPriorState
		}
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"partition": cw.id.pk, "row": cw.id.rk}).Error("failed to roll back cross-group write")
			errs = append(errs, fmt.Errorf("undo %s/%s: %w", cw.id.pk, cw.id.rk, err))
		}
	}
	return errors.Join(errs...)
}

func conflictOr(err error) error {
	if isStatus(err, 409, 412) {
		return domain.ErrConcurrencyConflict
	}
	return err
}
