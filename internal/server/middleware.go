package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/dashnote/internal/handlers"
)

const requestIDHeader = "X-Request-ID"

// withConditionalMiddleware applies the chain to API routes. The websocket
// upgrade only gets CORS headers.
func (s *Server) withConditionalMiddleware(handler http.Handler) http.Handler {
	chained := s.recoveryMiddleware(handler)
	chained = s.corsMiddleware(chained)
	chained = s.loggingMiddleware(chained)
	chained = requestIDMiddleware(chained)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			setCORSHeaders(w.Header())
			handler.ServeHTTP(w, r)
			return
		}
		chained.ServeHTTP(w, r)
	})
}

// requestIDMiddleware echoes the caller's request ID or assigns one
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs one line per request once the response is written.
// Annotation runs are long, so the line comes after the handler returns.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		event := s.app.Logger.Debug()
		switch {
		case rw.statusCode >= http.StatusInternalServerError:
			event = s.app.Logger.Warn()
		case r.Method != http.MethodGet && rw.statusCode < http.StatusBadRequest:
			event = s.app.Logger.Info()
		}
		// PathValue is filled in by the mux on the same request
		if sessionID := r.PathValue("id"); sessionID != "" {
			event = event.Str("session_id", sessionID)
		}
		event.
			Str("request_id", r.Header.Get(requestIDHeader)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Int("bytes", rw.written).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
	h.Set("Access-Control-Expose-Headers", "Content-Disposition, "+requestIDHeader)
}

// corsMiddleware lets a browser front end on another origin call the API
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header())
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware turns a handler panic into a 500 and keeps serving
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				s.app.Logger.Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Str("request_id", r.Header.Get(requestIDHeader)).
					Str("stack", string(buf[:n])).
					Msg("Panic recovered")

				handlers.WriteError(w, http.StatusInternalServerError, "Something went wrong while processing the request.")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter records the status and body size for the request log
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// Hijack keeps websocket upgrades working through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("responseWriter does not implement http.Hijacker")
}
