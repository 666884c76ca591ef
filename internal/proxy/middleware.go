package proxy

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Recovery turns a handler panic into a 502 for the gateway client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == http.ErrAbortHandler {
				// the reverse proxy aborts mid-stream copies this way
				panic(rec)
			}
			if rec != nil {
				slog.ErrorContext(r.Context(), "gateway handler panicked", "panic", rec, "path", r.URL.Path)
				http.Error(w, "gateway failed to forward the request", http.StatusBadGateway)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Logging logs gateway requests tagged with the upstream host they were forwarded to.
// Only Content-Type is logged from the headers: requests leave with a bearer token.
func Logging(logger *slog.Logger, upstreamHost string) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger.With(slog.String("upstream", upstreamHost)), &httplog.Options{
		Schema:            httplog.SchemaECS.Concise(true),
		LogRequestHeaders: []string{"Content-Type"},
		RecoverPanics:     false,
	})
}

// applyMiddlewares applies middlewares to a handler in the order they appear.
// The first middleware in the slice is the outermost (executes first).
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
