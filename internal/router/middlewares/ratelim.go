package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sethvargo/go-limiter/httplimit"
	"github.com/sethvargo/go-limiter/memorystore"
)

// RateLimiterConfig specifies the maximum requests per interval, and interval
// length for the rate limiting rule applied to every client.
type RateLimiterConfig struct {
	MaxRPI   uint64
	Interval time.Duration
}

// RateLimitController creates a new middleware to rate limit requests.
// It keys the rate limiting on:
// 1. The IP resolved by the ClientIP middleware, if it ran.
// 2. An existing X-Forwarded-For IP included by a load-balancer in the infrastructure.
// 3. If 2. isn't present, the connection remote address.
func RateLimitController(cfg RateLimiterConfig) (mux.MiddlewareFunc, error) {
	keyFunc := func(r *http.Request) (string, error) {
		if ip, ok := r.Context().Value(ContextIPAddress).(string); ok && ip != "" {
			return ip, nil
		}
		ip, err := extractClientIP(r)
		if err != nil {
			return "", fmt.Errorf("extract client ip: %s", err)
		}
		return ip, nil
	}

	store, err := memorystore.New(&memorystore.Config{
		Tokens:   cfg.MaxRPI,
		Interval: cfg.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating limiter store: %s", err)
	}
	m, err := httplimit.NewMiddleware(store, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("creating httplimiter: %s", err)
	}

	return func(next http.Handler) http.Handler {
		return m.Handle(next)
	}, nil
}
