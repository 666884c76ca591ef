package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// DefaultIssuer is the IBM Cloud IAM OIDC issuer.
	DefaultIssuer = "https://iam.cloud.ibm.com/identity"
	// DefaultAccountsURL is the first page of the accounts visible to the token owner.
	DefaultAccountsURL = "https://accounts.cloud.ibm.com/coe/v2/accounts"

	// DefaultClientID and DefaultClientSecret identify the public IBM Cloud CLI client.
	DefaultClientID     = "bx"
	DefaultClientSecret = "bx"

	DefaultTimeout = 30 * time.Second

	transactionIDHeader = "Transaction-Id"
	// maxErrorBody bounds how much of a failed response is read for error mapping.
	maxErrorBody = 64 << 10
)

// Grant type wire values accepted by the IAM token endpoint.
const (
	GrantPassword     = "password"
	GrantAPIKey       = "urn:ibm:params:oauth:grant-type:apikey"
	GrantPasscode     = "urn:ibm:params:oauth:grant-type:passcode"
	GrantRefreshToken = "refresh_token"
)

// Endpoints are the IAM endpoints found through discovery.
type Endpoints struct {
	TokenURL    string
	PasscodeURL string
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	issuer        string
	clientID      string
	clientSecret  string
	timeout       time.Duration
	baseTransport http.RoundTripper
}

// WithIssuer overrides the OIDC issuer used for discovery.
func WithIssuer(issuer string) Option {
	return func(c *clientConfig) { c.issuer = issuer }
}

// WithClientCredentials sets the client id and secret sent as basic auth on exchanges.
func WithClientCredentials(id, secret string) Option {
	return func(c *clientConfig) {
		c.clientID = id
		c.clientSecret = secret
	}
}

// WithTimeout bounds every request made by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) { c.timeout = timeout }
}

// WithTransport sets a custom base transport for all requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) { c.baseTransport = transport }
}

// Client performs discovery, grant exchanges and account listing against IAM.
// It is safe for concurrent use.
type Client struct {
	cfg        clientConfig
	httpClient *http.Client

	mu        sync.Mutex
	endpoints *Endpoints
}

// New creates a Client. No I/O is performed until the first call.
func New(opts ...Option) *Client {
	cfg := clientConfig{
		issuer:        DefaultIssuer,
		clientID:      DefaultClientID,
		clientSecret:  DefaultClientSecret,
		timeout:       DefaultTimeout,
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: &transactionTransport{base: cfg.baseTransport},
		},
	}
}

// Discover resolves the token and passcode endpoints from the issuer's OIDC
// discovery document. Successful results are cached for the client's lifetime.
func (c *Client) Discover(ctx context.Context) (Endpoints, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.endpoints != nil {
		return *c.endpoints, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), c.cfg.issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("discovering identity provider %s: %w", c.cfg.issuer, err)
	}

	// passcode_endpoint is an IAM extension to the discovery document
	var claims struct {
		PasscodeEndpoint string `json:"passcode_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return Endpoints{}, fmt.Errorf("decoding discovery document: %w", err)
	}

	endpoints := Endpoints{
		TokenURL:    provider.Endpoint().TokenURL,
		PasscodeURL: claims.PasscodeEndpoint,
	}
	if endpoints.TokenURL == "" {
		return Endpoints{}, fmt.Errorf("discovery document of %s has no token endpoint", c.cfg.issuer)
	}

	c.endpoints = &endpoints
	return endpoints, nil
}

// tokenResponse is the IAM token endpoint success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	// Expiration is an absolute Unix time, used when expires_in is missing.
	Expiration int64 `json:"expiration"`
}

// Exchange posts form to tokenURL and returns the issued tokens.
// Non-2xx answers yield a *ProviderError, network failures a *TransportError.
func (c *Client) Exchange(ctx context.Context, tokenURL string, form url.Values) (*oauth2.Token, error) {
	payload := make(url.Values, len(form)+1)
	for k, v := range form {
		payload[k] = v
	}
	if payload.Get("response_type") == "" {
		payload.Set("response_type", "cloud_iam")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.clientID, c.cfg.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "token exchange", URL: tokenURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newProviderError(resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &TransportError{Op: "decoding token response", URL: tokenURL, Err: err}
	}
	if tr.AccessToken == "" {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Detail: "token response has no access_token"}
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
	}
	switch {
	case tr.ExpiresIn > 0:
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	case tr.Expiration > 0:
		tok.Expiry = time.Unix(tr.Expiration, 0)
	default:
		// a token without a lifetime would be refreshed on every use
		return nil, &ProviderError{StatusCode: resp.StatusCode, Detail: "token response has no expires_in or expiration"}
	}
	return tok, nil
}

// transactionTransport stamps every request with a fresh Transaction-Id.
type transactionTransport struct {
	base http.RoundTripper
}

var _ http.RoundTripper = (*transactionTransport)(nil)

func (t *transactionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(transactionIDHeader) != "" {
		return t.base.RoundTrip(req)
	}

	newReq := req.Clone(req.Context())
	newReq.Header.Set(transactionIDHeader, uuid.NewString())
	return t.base.RoundTrip(newReq)
}
