package shared

import (
	"net/http"
	"strconv"
	"strings"

	"hrbpms/internal/domain/records"
)

// reservedParams shape the query; every other parameter is an equality filter.
var reservedParams = map[string]struct{}{
	"select": {},
	"order":  {},
	"desc":   {},
	"limit":  {},
}

// ParseRecordQuery reads select, order, desc and limit. The literal value
// "null" filters for a missing value. Limit is capped at maxLimit when set.
func ParseRecordQuery(r *http.Request, maxLimit int) records.Query {
	values := r.URL.Query()
	q := records.Query{Select: strings.TrimSpace(values.Get("select"))}

	if field := strings.TrimSpace(values.Get("order")); field != "" {
		desc, _ := strconv.ParseBool(values.Get("desc"))
		q.OrderBy = &records.Order{Field: field, Ascending: !desc}
	}
	if raw := values.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			q.Limit = v
		}
	}
	if maxLimit > 0 && (q.Limit == 0 || q.Limit > maxLimit) {
		q.Limit = maxLimit
	}

	for key, vals := range values {
		if _, ok := reservedParams[key]; ok || len(vals) == 0 {
			continue
		}
		if q.Filters == nil {
			q.Filters = make(map[string]any)
		}
		if vals[0] == "null" {
			q.Filters[key] = nil
			continue
		}
		q.Filters[key] = vals[0]
	}
	return q
}
