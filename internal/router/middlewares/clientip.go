package middlewares

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's IP address and stores it in the request
// context under ContextIPAddress, where the rate limiter and the request
// logger pick it up.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip, err := extractClientIP(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), ContextIPAddress, ip))
		}
		next.ServeHTTP(w, r)
	})
}

func extractClientIP(r *http.Request) (string, error) {
	// Use X-Forwarded-For IP if present.
	// i.g: https://cloud.google.com/load-balancing/docs/https#x-forwarded-for_header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.Split(xff, ",")[0]
		return ip, nil
	}

	// Use the request remote address.
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("getting ip from remote addr: %s", err)
	}
	return ip, nil
}
