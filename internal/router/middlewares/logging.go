package middlewares

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WithLogging flags every non-200 answer of the broker API, together with
// the route and the caller resolved by ClientIP. Successful requests stay
// quiet; the traffic detail lives in the OpenTelemetry instrumentation.
func WithLogging(h http.Handler) http.Handler {
	handler := func(rw http.ResponseWriter, req *http.Request) {
		loggedRW := &responseWriterLogger{
			ResponseWriter: rw,
		}
		h.ServeHTTP(loggedRW, req)

		if loggedRW.statusCode != http.StatusOK {
			evt := log.Warn().
				Int("statusCode", loggedRW.statusCode).
				Str("method", req.Method).
				Str("path", req.URL.Path)
			if ip, ok := req.Context().Value(ContextIPAddress).(string); ok {
				evt = evt.Str("clientIp", ip)
			}
			evt.Msg("non-200 status code response")
		}
	}
	return http.HandlerFunc(handler)
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseWriterLogger) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.statusCode = statusCode
}
