package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/cloudsession/internal/identity"
	"github.com/florianilch/cloudsession/internal/recordstore"
	"github.com/florianilch/cloudsession/internal/secretstore"
)

const (
	// DefaultService is the secret store service the refresh token is filed under.
	DefaultService = "cloudsession"

	// DefaultRefreshInterval is how often Run checks token freshness.
	DefaultRefreshInterval = 60 * time.Second

	// RefreshMargin is the remaining lifetime below which a token is refreshed.
	RefreshMargin = 60 * time.Second
)

// Storage keys.
const (
	RefreshTokenKey = "refresh_token"
	AccountIDKey    = "account_id"
	AccountEmailKey = "account_email"
)

// IdentityClient performs the outbound IAM operations a Session needs.
// *identity.Client implements it.
type IdentityClient interface {
	Discover(ctx context.Context) (identity.Endpoints, error)
	Exchange(ctx context.Context, tokenURL string, form url.Values) (*oauth2.Token, error)
	ListAccountsPage(ctx context.Context, accessToken, pageURL string) (*identity.AccountsPage, error)
}

var _ IdentityClient = (*identity.Client)(nil)

// State is the login state of a Session.
type State int

const (
	LoggedOut State = iota
	LoggedInNoAccount
	LoggedInWithAccount
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged out"
	case LoggedInNoAccount:
		return "logged in, no account selected"
	case LoggedInWithAccount:
		return "logged in"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Session.
type Option func(*Session)

// WithService sets the secret store service name for the refresh token.
func WithService(service string) Option {
	return func(s *Session) { s.service = service }
}

// WithAccountsURL sets the first page of the account listing.
func WithAccountsURL(accountsURL string) Option {
	return func(s *Session) { s.accountsURL = accountsURL }
}

// WithRefreshInterval sets how often Run checks token freshness.
func WithRefreshInterval(interval time.Duration) Option {
	return func(s *Session) { s.refreshInterval = interval }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session manages login, token refresh, account selection and logout for one
// identity. It is safe for concurrent use.
type Session struct {
	identity IdentityClient
	secrets  secretstore.Store
	records  recordstore.Store

	service         string
	accountsURL     string
	refreshInterval time.Duration
	now             func() time.Time

	// mu serializes state-mutating operations and guards the in-memory token
	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time

	listenersMu sync.Mutex
	listeners   []listener
	nextID      int
}

// New creates a Session. No I/O is performed.
func New(client IdentityClient, secrets secretstore.Store, records recordstore.Store, opts ...Option) *Session {
	s := &Session{
		identity:        client,
		secrets:         secrets,
		records:         records,
		service:         DefaultService,
		accountsURL:     identity.DefaultAccountsURL,
		refreshInterval: DefaultRefreshInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsLoggedIn reports whether a refresh token is stored.
func (s *Session) IsLoggedIn(ctx context.Context) bool {
	rt, err := s.storedRefreshToken(ctx)
	if err != nil {
		slog.WarnContext(ctx, "reading refresh token failed", "error", err)
		return false
	}
	return rt != ""
}

// IsAccountSelected reports whether the session is logged in and both the
// account id and email are stored.
func (s *Session) IsAccountSelected(ctx context.Context) bool {
	_, ok := s.selection(ctx)
	return ok
}

// State derives the current state from storage.
func (s *Session) State(ctx context.Context) State {
	if !s.IsLoggedIn(ctx) {
		return LoggedOut
	}
	if !s.IsAccountSelected(ctx) {
		return LoggedInNoAccount
	}
	return LoggedInWithAccount
}

// Account returns the selected account id. Storage read only.
func (s *Session) Account(ctx context.Context) (string, bool) {
	acc, ok := s.selection(ctx)
	return acc.ID, ok
}

// Email returns the owner email of the selected account. Storage read only.
func (s *Session) Email(ctx context.Context) (string, bool) {
	acc, ok := s.selection(ctx)
	return acc.Email, ok
}

// selection returns the stored account when logged in and both halves of the
// account/email pair are present. A half-written pair counts as no selection.
func (s *Session) selection(ctx context.Context) (Account, bool) {
	if !s.IsLoggedIn(ctx) {
		return Account{}, false
	}

	id, err := s.records.Get(ctx, AccountIDKey)
	if err != nil {
		if !errors.Is(err, recordstore.ErrNotFound) {
			slog.WarnContext(ctx, "reading account id failed", "error", err)
		}
		return Account{}, false
	}
	email, err := s.records.Get(ctx, AccountEmailKey)
	if err != nil {
		if !errors.Is(err, recordstore.ErrNotFound) {
			slog.WarnContext(ctx, "reading account email failed", "error", err)
		}
		return Account{}, false
	}
	if id == "" {
		return Account{}, false
	}
	return Account{ID: id, Email: email}, true
}

// storedRefreshToken returns "" without error when no token is stored.
func (s *Session) storedRefreshToken(ctx context.Context) (string, error) {
	rt, err := s.secrets.Get(ctx, s.service, RefreshTokenKey)
	if errors.Is(err, secretstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading refresh token: %w", err)
	}
	return rt, nil
}
