package api

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"

	"tradejournal/internal/constants"
	"tradejournal/internal/ratelimit"
)

// rateLimiters builds per-IP limiters keyed on the resolved client IP. With a
// Redis client every limiter keeps its counters there under its own prefix;
// without one httprate's in-memory counter is used.
type rateLimiters struct {
	redis    redis.UniversalClient
	resolver *ClientIPResolver
}

func (l rateLimiters) options(name string, window time.Duration) []httprate.Option {
	opts := []httprate.Option{
		httprate.WithKeyFuncs(l.key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeRateLimited(w, window)
		}),
	}
	if l.redis != nil {
		opts = append(opts, httprate.WithLimitCounter(ratelimit.NewRedisCounter(l.redis, "ratelimit:"+name)))
	}
	return opts
}

func (l rateLimiters) key(r *http.Request) (string, error) {
	return l.resolver.Resolve(r), nil
}

// limit counts every request.
func (l rateLimiters) limit(name string, requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window, l.options(name, window)...)
}

// failures counts only requests answered with a status of 400 or above. A
// client is turned away once it has failed requests times within the window,
// however many of its requests succeeded in between.
func (l rateLimiters) failures(name string, requests int, window time.Duration) func(http.Handler) http.Handler {
	limiter := httprate.NewRateLimiter(requests, window, l.options(name, window)...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, _ := l.key(r)

			_, rate, err := limiter.Status(key)
			if err != nil {
				slog.Error("reading rate limit counter", "limiter", name, "error", err)
				writeError(w, http.StatusInternalServerError, constants.ErrCodeInternal, "An unexpected error occurred", nil)
				return
			}
			if int(math.Round(rate)) >= requests {
				writeRateLimited(w, window)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if ww.Status() < http.StatusBadRequest {
				return
			}
			currentWindow := time.Now().UTC().Truncate(window)
			if err := limiter.Counter().IncrementBy(key, currentWindow, 1); err != nil {
				slog.Warn("recording failed request", "limiter", name, "error", err)
			}
		})
	}
}

func writeRateLimited(w http.ResponseWriter, window time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(window)))
	writeError(w, http.StatusTooManyRequests, constants.ErrCodeRateLimitExceeded, "Too many requests, please try again later", nil)
}

func retryAfterSeconds(window time.Duration) int {
	if window <= 0 {
		return 1
	}
	return int(math.Ceil(window.Seconds()))
}
