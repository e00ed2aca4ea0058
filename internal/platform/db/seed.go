package db

import (
	"context"
	"fmt"
	"strings"

	"hrbpms/internal/domain/records"
)

// Seed inserts rows that are not present yet. Rows must carry an id; existing
// ids are left untouched so the seed can run on every start.
func Seed(ctx context.Context, db querier, collection string, rows []records.Record) error {
	if !records.Known(collection) {
		return unknownCollection("seed", collection)
	}
	for _, row := range rows {
		if row.ID() == "" {
			return fmt.Errorf("seed %s: row without id", collection)
		}
		sql, args := buildInsert(collection, row)
		sql = strings.TrimSuffix(sql, " RETURNING *") + " ON CONFLICT (id) DO NOTHING"
		if _, err := db.Exec(ctx, sql, args...); err != nil {
			return mapError("seed", collection, err)
		}
	}
	return nil
}
