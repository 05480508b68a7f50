package middleware

import (
	"net/http"
	"strconv"
	"time"

	"isp-saas.com/routersync/pkg/redis"
)

// RateLimiter throttles per-client request rates. Sits in front of the
// status endpoints, which the dashboard hammers hardest.
type RateLimiter struct {
	redis  *redis.RedisClient
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.RedisClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			ip = forwarded
		}

		key := "ratelimit:" + ip

		allowed, retryAfter, err := rl.redis.CheckRateLimit(key, rl.limit, rl.window)
		if err != nil {
			// Redis trouble should not take the API down with it.
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"error":"Rate limit exceeded. Please try again later."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
