package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	cacheTimeout         = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// recorder buffers the response so it can be stored after the handler returns.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for POST requests that repeat an
// Idempotency-Key header. Requests without the header pass through untouched.
// Only 2xx responses are stored so a corrected retry is not blocked.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Keys are scoped to the path so one key cannot replay another user's response.
			cacheKey := idempotencyPrefix + r.URL.Path + ":" + key

			ctx, cancel := context.WithTimeout(r.Context(), cacheTimeout)
			defer cancel()

			reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
			if err != nil {
				logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
				http.Error(w, "idempotency store failure", http.StatusInternalServerError)
				return
			}

			if !reserved {
				replay(ctx, w, cache, cacheKey, key, logger)
				return
			}

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheTimeout)
			defer persistCancel()

			if rec.status < 200 || rec.status >= 300 {
				cache.Del(persistCtx, cacheKey)
				return
			}

			stored := storedResponse{
				Status:  rec.status,
				Body:    rec.body.String(),
				Headers: map[string]string{"Content-Type": w.Header().Get("Content-Type")},
			}
			payload, err := json.Marshal(stored)
			if err != nil {
				logger.Error("failed to encode idempotent response", slog.String("key", key), slog.Any("error", err))
				cache.Del(persistCtx, cacheKey)
				return
			}
			if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
				logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
				cache.Del(persistCtx, cacheKey)
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, cache *redis.Client, cacheKey, key string, logger *slog.Logger) {
	cached, err := cache.Get(ctx, cacheKey).Result()
	if err == redis.Nil || cached == inProgressMarker {
		http.Error(w, "duplicate request currently processing", http.StatusConflict)
		return
	}
	if err != nil {
		logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
		http.Error(w, "idempotency store failure", http.StatusInternalServerError)
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("failed to decode stored idempotent response", slog.String("key", key), slog.Any("error", err))
		http.Error(w, "duplicate request", http.StatusConflict)
		return
	}

	for header, value := range stored.Headers {
		if value != "" {
			w.Header().Set(header, value)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	w.Write([]byte(stored.Body))
}
