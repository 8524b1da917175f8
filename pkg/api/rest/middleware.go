package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain combines multiple middleware into a single middleware. The first one runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// RequestID returns a middleware that assigns each request an ID, reusing a well-formed
// incoming one, and stores it in the context for logging.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
		})
	}
}

// Logger returns a middleware that logs HTTP requests.
func Logger(logger log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create a response wrapper to capture the status code
			wrapper := &responseWrapper{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			fields := []log.Field{
				log.Str("method", r.Method),
				log.Str("path", r.URL.Path),
				log.Int("status", wrapper.status),
				log.Duration("duration", time.Since(start)),
				log.Str("remote_addr", r.RemoteAddr),
				log.Str("user_agent", r.UserAgent()),
			}
			if wrapper.client != "" {
				fields = append(fields, log.Client(wrapper.client))
			}
			l := logger.WithContext(r.Context())
			if wrapper.status >= http.StatusInternalServerError {
				l.Warn("HTTP Request", fields...)
			} else {
				l.Info("HTTP Request", fields...)
			}
		})
	}
}

// Identifier turns a bearer token into a caller identity. An empty token is anonymous.
type Identifier interface {
	Identify(ctx context.Context, token string) (*types.Identity, error)
}

// Authenticate returns a middleware that resolves the caller from the Authorization header.
// Requests without a token continue anonymously; a token that fails validation is rejected
// with 401 on every route except the public paths, which never look at the header.
func Authenticate(identifier Identifier, logger log.Logger, publicPaths ...string) Middleware {
	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			token := auth.TokenFromHeader(r.Header.Get("Authorization"))
			id, err := identifier.Identify(r.Context(), token)
			if err != nil {
				logger.WithContext(r.Context()).Warn("Rejected bearer token", log.Err(err))
				WriteError(w, r, err, logger)
				return
			}
			ctx := r.Context()
			if id != nil {
				ctx = auth.WithIdentity(ctx, id)
				ctx = log.ContextWithClient(ctx, id.Name)
				if rw, ok := w.(*responseWrapper); ok {
					rw.client = id.Name
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORS returns a middleware that adds CORS headers to the response.
func CORS() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
			w.Header().Set("Access-Control-Expose-Headers", "Location, "+RequestIDHeader)

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Recovery returns a middleware that recovers from panics.
func Recovery(logger log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.WithContext(r.Context()).Error("Panic recovered",
						log.Any("error", err), log.Str("path", r.URL.Path))
					writeBody(w, http.StatusInternalServerError, ErrorBody{
						Error:   types.CategoryInternal,
						Message: "internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Timeout returns a middleware that adds a timeout to the request context.
func Timeout(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// responseWrapper is a wrapper for http.ResponseWriter that captures the status code and
// the authenticated client, if any.
type responseWrapper struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	client      string
}

// WriteHeader captures the status code and passes it to the wrapped ResponseWriter.
func (rw *responseWrapper) WriteHeader(status int) {
	if !rw.wroteHeader {
		rw.status = status
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWrapper) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
