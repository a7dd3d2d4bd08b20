package v1

import (
	"github.com/google/uuid"
	"github.com/shimmeringbee/logwrap"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
	"net/http"
	"time"
)

const RequestIDHeader = "X-Request-ID"

// noCache marks every response as uncacheable, band telemetry is only ever
// correct at the moment it is read.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range broker.CacheBypassHeaders {
			w.Header().Set(k, v)
		}

		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}

	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func requestLogging(l logwrap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if len(requestID) == 0 {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				l.LogError(r.Context(), "Panic recovered in http handler.", logwrap.Datum("requestId", requestID), logwrap.Datum("method", r.Method), logwrap.Datum("path", r.URL.Path), logwrap.Datum("panic", p))

				if !sw.wroteHeader {
					http.Error(sw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}

			l.LogDebug(r.Context(), "Handled http request.", logwrap.Datum("requestId", requestID), logwrap.Datum("method", r.Method), logwrap.Datum("path", r.URL.Path), logwrap.Datum("status", sw.status), logwrap.Datum("duration", time.Since(start).String()))
		}()

		next.ServeHTTP(sw, r)
	})
}
