package router

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"repairmarket/internal/auth"
)

// Limiter caps how many bids a technician may place per window. State
// lives in redis so the cap holds across instances. A nil Limiter
// passes everything through.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: limit, window: window}
}

func (l *Limiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("ratelimit:bids:%s", auth.UserID(r.Context()))

		count, err := l.client.Incr(r.Context(), key).Result()
		if err != nil {
			// limiter trouble never blocks the request itself
			log.Printf("router.Limiter: %s", err)
			next(w, r)
			return
		}
		if count == 1 {
			l.client.Expire(r.Context(), key, l.window)
		}

		if count > int64(l.limit) {
			ttl, err := l.client.TTL(r.Context(), key).Result()
			if err != nil || ttl < 0 {
				ttl = l.window
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", ttl.Seconds()))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"reason":"bid rate limit exceeded, retry later"}`))
			return
		}

		next(w, r)
	}
}
