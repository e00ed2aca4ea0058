// Package supabase talks to the hosted backend: PostgREST for records and
// GoTrue for authentication.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	URL       string
	AnonKey   string
	JWTSecret string
	Timeout   time.Duration
}

type baseClient struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func newBaseClient(cfg Config, httpClient *http.Client) baseClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return baseClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		http:    httpClient,
	}
}

type request struct {
	method  string
	url     string
	body    any
	bearer  string
	headers map[string]string
}

// send returns the status and raw body. Only transport failures are errors.
func (c baseClient) send(ctx context.Context, req request) (int, []byte, error) {
	var reader io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reader)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("apikey", c.anonKey)
	bearer := req.bearer
	if bearer == "" {
		bearer = c.anonKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, raw, nil
}
