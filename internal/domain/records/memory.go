package records

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps collections in process memory. It backs LOCAL_FALLBACK
// mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	rows  map[string]map[string]Record
	order map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:   time.Now,
		rows:  make(map[string]map[string]Record),
		order: make(map[string][]string),
	}
}

func (s *MemoryStore) FetchAll(_ context.Context, collection string, q Query) ([]Record, error) {
	if !Known(collection) {
		return nil, unknownCollection("fetch", collection)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, id := range s.order[collection] {
		row := s.rows[collection][id]
		if matches(row, q.Filters) {
			out = append(out, row)
		}
	}
	if q.OrderBy != nil {
		field, asc := q.OrderBy.Field, q.OrderBy.Ascending
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][field], out[j][field])
			if asc {
				return c < 0
			}
			return c > 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for i, row := range out {
		out[i] = project(row, q.Select)
	}
	return out, nil
}

func (s *MemoryStore) FetchOne(_ context.Context, collection, id, selection string) (Record, error) {
	if !Known(collection) {
		return nil, unknownCollection("fetch", collection)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return project(row, selection), nil
}

func (s *MemoryStore) Insert(_ context.Context, collection string, partial Record) (Record, error) {
	if !Known(collection) {
		return nil, unknownCollection("insert", collection)
	}
	if len(partial) == 0 {
		return nil, &ValidationError{Collection: collection, Message: "empty record"}
	}
	row := partial.Clone()
	id := row.ID()
	if id == "" {
		id = uuid.NewString()
		row["id"] = id
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = s.now().UTC().Format(time.RFC3339Nano)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[collection] == nil {
		s.rows[collection] = make(map[string]Record)
	}
	if _, exists := s.rows[collection][id]; exists {
		return nil, &ValidationError{Collection: collection, Message: "duplicate key", Fields: map[string]string{"id": "already exists"}}
	}
	s.rows[collection][id] = row
	s.order[collection] = append(s.order[collection], id)
	return row.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, partial Record) (Record, error) {
	if !Known(collection) {
		return nil, unknownCollection("update", collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := row.Clone()
	for key, value := range WithoutSystemFields(partial) {
		updated[key] = value
	}
	s.rows[collection][id] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) Remove(_ context.Context, collection, id string) error {
	if !Known(collection) {
		return unknownCollection("delete", collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[collection][id]; !ok {
		return nil
	}
	delete(s.rows[collection], id)
	ids := s.order[collection]
	for i, existing := range ids {
		if existing == id {
			s.order[collection] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func unknownCollection(op, collection string) error {
	return &StoreError{Op: op, Collection: collection, Code: CodeUnknownCollection, Err: fmt.Errorf("collection %q does not exist", collection)}
}

func matches(row Record, filters map[string]any) bool {
	for field, want := range filters {
		got, ok := row[field]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// equalValues compares by printed form so "true" matches true and "3" matches 3.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(deref(a)) == fmt.Sprint(deref(b))
}

func deref(v any) any {
	switch t := v.(type) {
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *float64:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}

func project(row Record, selection string) Record {
	selection = strings.TrimSpace(selection)
	if selection == "" || selection == "*" {
		return row.Clone()
	}
	out := Record{}
	for _, field := range strings.Split(selection, ",") {
		field = strings.TrimSpace(field)
		if value, ok := row[field]; ok {
			out[field] = value
		}
	}
	return out
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
