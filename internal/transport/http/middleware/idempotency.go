package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"hrbpms/internal/platform/localstore"
	"hrbpms/internal/requestctx"
	"hrbpms/internal/transport/http/api"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyPrefix = "idempotency:"

	DefaultIdempotencyTTL = 24 * time.Hour
)

// IdempotencyStore remembers successful responses per actor, endpoint and key
// for TTL.
type IdempotencyStore struct {
	store localstore.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewIdempotencyStore keeps responses for ttl, DefaultIdempotencyTTL when
// ttl is not positive.
func NewIdempotencyStore(store localstore.Store, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{store: store, ttl: ttl, now: time.Now}
}

type storedResponse struct {
	RequestHash string          `json:"request_hash"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
	SavedAt     time.Time       `json:"saved_at"`
}

func (s *IdempotencyStore) expired(stored storedResponse) bool {
	return s.now().Sub(stored.SavedAt) > s.ttl
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func idempotencyKey(actor, endpoint, key string) string {
	return idempotencyPrefix + actor + ":" + endpoint + ":" + key
}

func (s *IdempotencyStore) Check(ctx context.Context, actor, endpoint, key, requestHash string) (*storedResponse, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	raw, ok, err := s.store.Get(ctx, idempotencyKey(actor, endpoint, key))
	if err != nil || !ok {
		return nil, err
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}
	if s.expired(stored) {
		return nil, s.store.Remove(ctx, idempotencyKey(actor, endpoint, key))
	}
	if stored.RequestHash != requestHash {
		return nil, ErrIdempotencyConflict
	}
	return &stored, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, actor, endpoint, key, requestHash string, status int, body []byte) error {
	if s == nil || s.store == nil {
		return nil
	}
	raw, err := json.Marshal(storedResponse{RequestHash: requestHash, Status: status, Body: body, SavedAt: s.now().UTC()})
	if err != nil {
		return err
	}
	return s.store.Set(ctx, idempotencyKey(actor, endpoint, key), string(raw))
}

// Prune removes expired and unreadable responses and reports how many went.
func (s *IdempotencyStore) Prune(ctx context.Context) (int, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	keys, err := s.store.Keys(ctx, idempotencyPrefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		raw, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		var stored storedResponse
		if json.Unmarshal([]byte(raw), &stored) == nil && !s.expired(stored) {
			continue
		}
		if err := s.store.Remove(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RunPruner prunes every interval until ctx is cancelled.
func (s *IdempotencyStore) RunPruner(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.Prune(ctx)
			if err != nil {
				logger.Warn("idempotency prune failed", "err", err)
				continue
			}
			if removed > 0 {
				logger.Info("idempotency responses pruned", "removed", removed)
			}
		}
	}
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotent replays the stored response when a request is retried with the
// same Idempotency-Key. It must run after RequireSession.
func Idempotent(store *IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())

			payload, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(payload))

			actor := clientIPKey(r)
			if snap, ok := SnapshotFrom(r.Context()); ok && snap.User != nil {
				actor = snap.User.ID
			}
			endpoint := r.Method + " " + r.URL.Path
			hash := RequestHash(payload)

			stored, err := store.Check(r.Context(), actor, endpoint, key, hash)
			if errors.Is(err, ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), requestID)
				return
			}
			if err != nil {
				requestctx.Logger(r.Context()).Warn("idempotency lookup failed", "err", err)
			}
			if stored != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if capture.status >= 200 && capture.status < 300 {
				if err := store.Save(r.Context(), actor, endpoint, key, hash, capture.status, capture.body.Bytes()); err != nil {
					requestctx.Logger(r.Context()).Warn("idempotency save failed", "err", err)
				}
			}
		})
	}
}
