package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"hrbpms/internal/domain/records"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RecordStore implements records.Store on the schema in migrations/.
type RecordStore struct {
	db querier
}

func NewRecordStore(db querier) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) FetchAll(ctx context.Context, collection string, q records.Query) ([]records.Record, error) {
	if !records.Known(collection) {
		return nil, unknownCollection("fetch", collection)
	}
	sql, args := buildSelect(collection, q)
	out, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, mapError("fetch", collection, err)
	}
	return out, nil
}

func (s *RecordStore) FetchOne(ctx context.Context, collection, id, selection string) (records.Record, error) {
	if !records.Known(collection) {
		return nil, unknownCollection("fetch", collection)
	}
	sql, args := buildSelect(collection, records.Query{Select: selection, Filters: map[string]any{"id": id}, Limit: 1})
	return s.one(ctx, "fetch", collection, sql, args)
}

func (s *RecordStore) Insert(ctx context.Context, collection string, partial records.Record) (records.Record, error) {
	if !records.Known(collection) {
		return nil, unknownCollection("insert", collection)
	}
	sql, args := buildInsert(collection, partial)
	return s.one(ctx, "insert", collection, sql, args)
}

func (s *RecordStore) Update(ctx context.Context, collection, id string, partial records.Record) (records.Record, error) {
	if !records.Known(collection) {
		return nil, unknownCollection("update", collection)
	}
	changes := records.WithoutSystemFields(partial)
	if len(changes) == 0 {
		return s.FetchOne(ctx, collection, id, "")
	}
	sql, args := buildUpdate(collection, id, changes)
	return s.one(ctx, "update", collection, sql, args)
}

func (s *RecordStore) Remove(ctx context.Context, collection, id string) error {
	if !records.Known(collection) {
		return unknownCollection("delete", collection)
	}
	sql := "DELETE FROM " + ident(collection) + " WHERE id = $1"
	if _, err := s.db.Exec(ctx, sql, id); err != nil {
		return mapError("delete", collection, err)
	}
	return nil
}

func (s *RecordStore) one(ctx context.Context, op, collection, sql string, args []any) (records.Record, error) {
	rows, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, collection, err)
	}
	if len(rows) == 0 {
		return nil, records.ErrNotFound
	}
	return rows[0], nil
}

func (s *RecordStore) query(ctx context.Context, sql string, args ...any) ([]records.Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, rowToRecord)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []records.Record{}
	}
	return out, nil
}

// rowToRecord keeps DATE columns in the YYYY-MM-DD form the hosted backend returns.
func rowToRecord(row pgx.CollectableRow) (records.Record, error) {
	values, err := pgx.RowToMap(row)
	if err != nil {
		return nil, err
	}
	for _, fd := range row.FieldDescriptions() {
		if fd.DataTypeOID != pgtype.DateOID {
			continue
		}
		if t, ok := values[fd.Name].(time.Time); ok {
			values[fd.Name] = t.Format(time.DateOnly)
		}
	}
	return records.Record(values), nil
}

func buildSelect(collection string, q records.Query) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columnList(q.Select))
	b.WriteString(" FROM ")
	b.WriteString(ident(collection))

	where, args := whereClause(q.Filters, 1)
	b.WriteString(where)

	if q.OrderBy != nil && q.OrderBy.Field != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(ident(q.OrderBy.Field))
		if q.OrderBy.Ascending {
			b.WriteString(" ASC")
		} else {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String(), args
}

func buildInsert(collection string, partial records.Record) (string, []any) {
	keys := sortedKeys(partial)
	if len(keys) == 0 {
		return "INSERT INTO " + ident(collection) + " DEFAULT VALUES RETURNING *", nil
	}
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		cols[i] = ident(key)
		marks[i] = "$" + strconv.Itoa(i+1)
		args[i] = partial[key]
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		ident(collection), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return sql, args
}

func buildUpdate(collection, id string, changes records.Record) (string, []any) {
	keys := sortedKeys(changes)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, key := range keys {
		sets[i] = ident(key) + " = $" + strconv.Itoa(i+1)
		args = append(args, changes[key])
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		ident(collection), strings.Join(sets, ", "), len(args))
	return sql, args
}

func whereClause(filters map[string]any, first int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	var args []any
	for _, key := range keys {
		value := filters[key]
		if value == nil {
			conds = append(conds, ident(key)+" IS NULL")
			continue
		}
		args = append(args, value)
		conds = append(conds, ident(key)+" = $"+strconv.Itoa(first+len(args)-1))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func columnList(selection string) string {
	selection = strings.TrimSpace(selection)
	if selection == "" || selection == "*" {
		return "*"
	}
	parts := strings.Split(selection, ",")
	cols := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			cols = append(cols, ident(part))
		}
	}
	if len(cols) == 0 {
		return "*"
	}
	return strings.Join(cols, ", ")
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func sortedKeys(rec records.Record) []string {
	keys := make([]string, 0, len(rec))
	for key := range rec {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func unknownCollection(op, collection string) error {
	return &records.StoreError{Op: op, Collection: collection, Code: records.CodeUnknownCollection, Err: errors.New("unknown collection")}
}

// mapError turns data exceptions (class 22) and integrity violations
// (class 23) into validation errors.
func mapError(op, collection string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return records.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if class := sqlStateClass(pgErr.Code); class == "22" || class == "23" {
			fields := map[string]string{}
			if pgErr.ColumnName != "" {
				fields[pgErr.ColumnName] = pgErr.Message
			}
			if pgErr.ConstraintName != "" {
				fields["constraint"] = pgErr.ConstraintName
			}
			return &records.ValidationError{Collection: collection, Message: pgErr.Message, Fields: fields}
		}
		return &records.StoreError{Op: op, Collection: collection, Code: pgErr.Code, Err: err}
	}
	return &records.StoreError{Op: op, Collection: collection, Err: err}
}

func sqlStateClass(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}
