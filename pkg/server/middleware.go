package server

import (
	"bufio"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getrouterd/routerd/pkg/httputil"
	"github.com/getrouterd/routerd/pkg/metrics"
	"github.com/getrouterd/routerd/pkg/stats"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// chain applies middlewares so the first listed runs outermost.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// statusWriter records the response status for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the WebSocket upgrade needs for hijacking.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack delegates to the underlying writer for upgraders that type-assert
// http.Hijacker directly instead of going through ResponseController.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

// Flush keeps streaming responses working through the wrapper.
func (w *statusWriter) Flush() {
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

// corsMiddleware allows any origin on every response; browser clients on
// arbitrary pages are expected callers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware converts handler panics into 500 responses.
func recoverMiddleware(log *slog.Logger, st *stats.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("handler panic", "path", r.URL.Path, "panic", rec)
					if st != nil {
						st.IncErrors()
					}
					httputil.WriteInternalError(w, "internal_error", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// observeMiddleware logs each request and feeds the request counters.
func observeMiddleware(log *slog.Logger, st *stats.Collector, set *metrics.Set) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			if st != nil {
				st.IncRequests()
			}
			if set != nil {
				if vec, err := set.RequestsTotal.WithLabels(r.URL.Path, r.Method); err == nil {
					_ = vec.Inc()
				}
				if vec, err := set.RequestDuration.WithLabels(r.URL.Path); err == nil {
					vec.Observe(elapsed.Seconds())
				}
			}
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", elapsed,
				"remote", r.RemoteAddr)
		})
	}
}

// authMiddleware requires a bearer token on /api paths when tokens are
// configured. Health, metrics and the WebSocket endpoint stay open.
func authMiddleware(tokens []string) Middleware {
	return func(next http.Handler) http.Handler {
		if len(tokens) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || !tokenAllowed(token, tokens) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenAllowed(token string, tokens []string) bool {
	for _, t := range tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			return true
		}
	}
	return false
}
