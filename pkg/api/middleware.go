package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
)

// RequestIDHeader carries the request id in responses.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []logging.Field{
			logging.F("http_request_id", id),
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", rec.status),
			logging.F("duration_ms", time.Since(start).Milliseconds()),
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("HTTP request failed", fields...)
			return
		}
		s.logger.Debug("HTTP request", fields...)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("Panic in HTTP handler",
					logging.F("path", r.URL.Path),
					logging.F("panic", v),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
					Kind:    "INTERNAL",
					Message: "internal error",
				}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
