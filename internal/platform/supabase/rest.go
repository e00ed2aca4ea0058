package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"hrbpms/internal/domain/records"
)

const acceptObject = "application/vnd.pgrst.object+json"

// TokenSource supplies the bearer used for row-level security. An empty token
// falls back to the anon key.
type TokenSource interface {
	AccessToken() string
}

// RestClient implements records.Store over PostgREST.
type RestClient struct {
	base   baseClient
	tokens TokenSource
}

func NewRestClient(cfg Config, tokens TokenSource, httpClient *http.Client) *RestClient {
	return &RestClient{base: newBaseClient(cfg, httpClient), tokens: tokens}
}

type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (c *RestClient) FetchAll(ctx context.Context, collection string, q records.Query) ([]records.Record, error) {
	params := url.Values{}
	params.Set("select", selection(q.Select))
	addFilters(params, q.Filters)
	if q.OrderBy != nil && q.OrderBy.Field != "" {
		dir := "desc"
		if q.OrderBy.Ascending {
			dir = "asc"
		}
		params.Set("order", q.OrderBy.Field+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprint(q.Limit))
	}

	status, body, err := c.base.send(ctx, request{method: http.MethodGet, url: c.endpoint(collection, params), bearer: c.bearer()})
	if err != nil {
		return nil, &records.StoreError{Op: "fetch", Collection: collection, Err: err}
	}
	if status != http.StatusOK {
		return nil, restFailure("fetch", collection, status, body, false)
	}
	out := []records.Record{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &records.StoreError{Op: "fetch", Collection: collection, Status: status, Err: err}
	}
	return out, nil
}

func (c *RestClient) FetchOne(ctx context.Context, collection, id, sel string) (records.Record, error) {
	params := url.Values{}
	params.Set("select", selection(sel))
	params.Set("id", "eq."+id)

	status, body, err := c.base.send(ctx, request{
		method:  http.MethodGet,
		url:     c.endpoint(collection, params),
		bearer:  c.bearer(),
		headers: map[string]string{"Accept": acceptObject},
	})
	if err != nil {
		return nil, &records.StoreError{Op: "fetch", Collection: collection, Err: err}
	}
	if status != http.StatusOK {
		return nil, restFailure("fetch", collection, status, body, false)
	}
	return decodeObject("fetch", collection, status, body)
}

func (c *RestClient) Insert(ctx context.Context, collection string, partial records.Record) (records.Record, error) {
	status, body, err := c.base.send(ctx, request{
		method: http.MethodPost,
		url:    c.endpoint(collection, url.Values{"select": {"*"}}),
		body:   partial,
		bearer: c.bearer(),
		headers: map[string]string{
			"Accept": acceptObject,
			"Prefer": "return=representation",
		},
	})
	if err != nil {
		return nil, &records.StoreError{Op: "insert", Collection: collection, Err: err}
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, restFailure("insert", collection, status, body, true)
	}
	return decodeObject("insert", collection, status, body)
}

func (c *RestClient) Update(ctx context.Context, collection, id string, partial records.Record) (records.Record, error) {
	params := url.Values{}
	params.Set("id", "eq."+id)
	params.Set("select", "*")

	status, body, err := c.base.send(ctx, request{
		method: http.MethodPatch,
		url:    c.endpoint(collection, params),
		body:   records.WithoutSystemFields(partial),
		bearer: c.bearer(),
		headers: map[string]string{
			"Accept": acceptObject,
			"Prefer": "return=representation",
		},
	})
	if err != nil {
		return nil, &records.StoreError{Op: "update", Collection: collection, Err: err}
	}
	if status != http.StatusOK {
		return nil, restFailure("update", collection, status, body, true)
	}
	return decodeObject("update", collection, status, body)
}

func (c *RestClient) Remove(ctx context.Context, collection, id string) error {
	params := url.Values{}
	params.Set("id", "eq."+id)

	status, body, err := c.base.send(ctx, request{method: http.MethodDelete, url: c.endpoint(collection, params), bearer: c.bearer()})
	if err != nil {
		return &records.StoreError{Op: "delete", Collection: collection, Err: err}
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return restFailure("delete", collection, status, body, false)
	}
	return nil
}

func (c *RestClient) endpoint(collection string, params url.Values) string {
	return c.base.baseURL + "/rest/v1/" + url.PathEscape(collection) + "?" + params.Encode()
}

func (c *RestClient) bearer() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken()
}

func selection(sel string) string {
	if sel == "" {
		return "*"
	}
	return sel
}

func addFilters(params url.Values, filters map[string]any) {
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := filters[key]
		if value == nil {
			params.Add(key, "is.null")
			continue
		}
		params.Add(key, "eq."+fmt.Sprint(value))
	}
}

func decodeObject(op, collection string, status int, body []byte) (records.Record, error) {
	var out records.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &records.StoreError{Op: op, Collection: collection, Status: status, Err: err}
	}
	return out, nil
}

// restFailure maps a PostgREST error response. 406 with a single-object
// Accept header (PGRST116) means zero rows matched.
func restFailure(op, collection string, status int, body []byte, write bool) error {
	var perr restError
	_ = json.Unmarshal(body, &perr)

	if status == http.StatusNotAcceptable || perr.Code == "PGRST116" {
		return records.ErrNotFound
	}
	if write && (status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity) {
		fields := map[string]string{}
		if perr.Details != "" {
			fields["details"] = perr.Details
		}
		if perr.Hint != "" {
			fields["hint"] = perr.Hint
		}
		return &records.ValidationError{Collection: collection, Message: perr.Message, Fields: fields}
	}
	msg := perr.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &records.StoreError{Op: op, Collection: collection, Status: status, Code: perr.Code, Err: errors.New(msg)}
}
