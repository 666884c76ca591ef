package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/cloudsession/internal/session"
)

// Proxy is a local gateway that forwards every request to the upstream API
// with the session's bearer token attached.
type Proxy struct {
	handler http.Handler
	server  *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*options)

type options struct {
	baseURL   string
	transport http.RoundTripper
}

// WithBaseURL sets the upstream API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithTransport sets the base transport beneath the token-injecting one.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) { o.transport = transport }
}

// New creates a gateway that authenticates upstream requests with tokens from ts.
func New(ts oauth2.TokenSource, opts ...Option) (*Proxy, error) {
	o := options{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}
	if o.baseURL == "" {
		return nil, errors.New("upstream base URL is required")
	}

	upstream, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL: %q is not absolute", o.baseURL)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			// Client credentials never reach the upstream
			pr.Out.Header.Del("Authorization")
		},
		// Flush only when the upstream flushes, so streamed responses pass through unbuffered
		FlushInterval: -1,
		Transport:     &oauth2.Transport{Source: ts, Base: o.transport},
		ErrorHandler:  handleUpstreamError,
	}

	logger := slog.Default()

	return &Proxy{
		handler: applyMiddlewares(reverseProxyHandler,
			Logging(logger, upstream.Host),
			Recovery,
		),
	}, nil
}

// handleUpstreamError answers 401 when no usable session exists and 502 otherwise.
func handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		http.Error(w, "not logged in: run 'cloudsession login'", http.StatusUnauthorized)
	case errors.Is(err, session.ErrNoAccountSelected):
		http.Error(w, "no account selected: run 'cloudsession account select'", http.StatusUnauthorized)
	case errors.Is(err, context.Canceled):
		// client went away; nothing to answer
	default:
		slog.ErrorContext(r.Context(), "upstream request failed", "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: read entire client request
		WriteTimeout: 15 * time.Minute, // Inbound: write entire response, long downloads still bounded
		IdleTimeout:  90 * time.Second, // Inbound: keep-alive wait for next request
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
