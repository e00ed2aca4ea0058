// Package records is the generic data-access contract used by every feature
// view: named collections, equality filters, single-record writes.
package records

import "context"

// Record is one row as returned by the backend. Keys are column names.
type Record map[string]any

func (r Record) ID() string {
	if id, ok := r["id"].(string); ok {
		return id
	}
	return ""
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for key, value := range r {
		out[key] = value
	}
	return out
}

type Order struct {
	Field     string
	Ascending bool
}

// Query narrows FetchAll. Filters are equality tests and are ANDed together.
// Zero values mean "all columns", "no filter", "backend order", "no limit".
type Query struct {
	Select  string
	Filters map[string]any
	OrderBy *Order
	Limit   int
}

// Store is atomic per record. Callers that need several writes to succeed
// together must handle partial completion themselves.
type Store interface {
	FetchAll(ctx context.Context, collection string, q Query) ([]Record, error)
	// FetchOne returns ErrNotFound when no row has the id.
	FetchOne(ctx context.Context, collection, id, selection string) (Record, error)
	Insert(ctx context.Context, collection string, partial Record) (Record, error)
	// Update returns ErrNotFound when no row has the id.
	Update(ctx context.Context, collection, id string, partial Record) (Record, error)
	Remove(ctx context.Context, collection, id string) error
}
