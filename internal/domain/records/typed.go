package records

import (
	"context"
	"encoding/json"
	"fmt"
)

// Decode converts a row into T. No schema check is made beyond what JSON
// decoding of T enforces.
func Decode[T any](rec Record) (T, error) {
	var out T
	raw, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}

// Encode converts a struct into a Record using its JSON tags.
func Encode(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func FetchAllAs[T any](ctx context.Context, store Store, collection string, q Query) ([]T, error) {
	rows, err := store.FetchAll(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		item, err := Decode[T](row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func FetchOneAs[T any](ctx context.Context, store Store, collection, id string) (T, error) {
	row, err := store.FetchOne(ctx, collection, id, "")
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](row)
}

func InsertAs[T any](ctx context.Context, store Store, collection string, partial any) (T, error) {
	var zero T
	rec, err := Encode(partial)
	if err != nil {
		return zero, err
	}
	row, err := store.Insert(ctx, collection, rec)
	if err != nil {
		return zero, err
	}
	return Decode[T](row)
}
