package metrics

import (
	"context"
	"errors"
	"time"

	"hrbpms/internal/domain/records"
)

type instrumentedStore struct {
	next records.Store
}

// InstrumentStore times every call of next. Not-found lookups count as ok.
func InstrumentStore(next records.Store) records.Store {
	return instrumentedStore{next: next}
}

func (s instrumentedStore) FetchAll(ctx context.Context, collection string, q records.Query) ([]records.Record, error) {
	start := time.Now()
	out, err := s.next.FetchAll(ctx, collection, q)
	RecordStoreCall(collection, "fetch_all", err, time.Since(start))
	return out, err
}

func (s instrumentedStore) FetchOne(ctx context.Context, collection, id, selection string) (records.Record, error) {
	start := time.Now()
	out, err := s.next.FetchOne(ctx, collection, id, selection)
	RecordStoreCall(collection, "fetch_one", notFoundOK(err), time.Since(start))
	return out, err
}

func (s instrumentedStore) Insert(ctx context.Context, collection string, partial records.Record) (records.Record, error) {
	start := time.Now()
	out, err := s.next.Insert(ctx, collection, partial)
	RecordStoreCall(collection, "insert", err, time.Since(start))
	return out, err
}

func (s instrumentedStore) Update(ctx context.Context, collection, id string, partial records.Record) (records.Record, error) {
	start := time.Now()
	out, err := s.next.Update(ctx, collection, id, partial)
	RecordStoreCall(collection, "update", notFoundOK(err), time.Since(start))
	return out, err
}

func (s instrumentedStore) Remove(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := s.next.Remove(ctx, collection, id)
	RecordStoreCall(collection, "remove", err, time.Since(start))
	return err
}

func notFoundOK(err error) error {
	if errors.Is(err, records.ErrNotFound) {
		return nil
	}
	return err
}
