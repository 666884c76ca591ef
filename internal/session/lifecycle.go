package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/cloudsession/internal/identity"
)

// PasscodeFunc obtains a one-time SSO passcode. It receives the URL where the
// user can generate one and returns ErrCancelled if the user declines.
type PasscodeFunc func(ctx context.Context, passcodeURL string) (string, error)

// LoginWithPassword logs in with IBMid credentials.
func (s *Session) LoginWithPassword(ctx context.Context, username, password string) error {
	return s.login(ctx, url.Values{
		"grant_type": {identity.GrantPassword},
		"username":   {username},
		"password":   {password},
	})
}

// LoginWithAPIKey logs in with an IAM API key.
func (s *Session) LoginWithAPIKey(ctx context.Context, apiKey string) error {
	return s.login(ctx, url.Values{
		"grant_type": {identity.GrantAPIKey},
		"apikey":     {apiKey},
	})
}

// LoginWithSSO logs in with a one-time passcode. The passcode endpoint is taken
// from discovery and handed to passcode. Returns false without error if the user
// cancels or enters nothing; session state is then left untouched.
func (s *Session) LoginWithSSO(ctx context.Context, passcode PasscodeFunc) (bool, error) {
	endpoints, err := s.identity.Discover(ctx)
	if err != nil {
		return false, err
	}
	if endpoints.PasscodeURL == "" {
		return false, errors.New("identity provider does not publish a passcode endpoint")
	}

	code, err := passcode(ctx, endpoints.PasscodeURL)
	if errors.Is(err, ErrCancelled) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading passcode: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}

	if err := s.login(ctx, url.Values{
		"grant_type": {identity.GrantPasscode},
		"passcode":   {code},
	}); err != nil {
		return false, err
	}
	return true, nil
}

// login exchanges a primary grant and replaces the stored session with its result.
func (s *Session) login(ctx context.Context, form url.Values) error {
	s.mu.Lock()
	err := s.loginLocked(ctx, form)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "logged in", "grant_type", form.Get("grant_type"))
	s.emit(Event{Op: OpLogin})
	return nil
}

func (s *Session) loginLocked(ctx context.Context, form url.Values) error {
	endpoints, err := s.identity.Discover(ctx)
	if err != nil {
		return err
	}

	tok, err := s.identity.Exchange(ctx, endpoints.TokenURL, form)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if tok.RefreshToken == "" {
		return errors.New("login failed: token response has no refresh token")
	}

	// A new identity invalidates the previous account selection. Clearing it
	// before storing the refresh token means a crash in between never pairs the
	// new credentials with the old account.
	if err := s.clearSelection(ctx); err != nil {
		return fmt.Errorf("clearing previous account: %w", err)
	}
	if err := s.secrets.Set(ctx, s.service, RefreshTokenKey, tok.RefreshToken); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}

	s.accessToken = tok.AccessToken
	s.expiresAt = tok.Expiry
	return nil
}

// Logout clears the refresh token, the account selection and the in-memory
// access token. It never fails: every delete is attempted and failures are logged.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.logoutLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "logged out")
	s.emit(Event{Op: OpLogout})
}

func (s *Session) logoutLocked(ctx context.Context) {
	s.accessToken = ""
	s.expiresAt = time.Time{}

	// deletes must run even when the caller's context is already done
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if err := s.secrets.Delete(ctx, s.service, RefreshTokenKey); err != nil {
		errs = append(errs, fmt.Errorf("deleting refresh token: %w", err))
	}
	if err := s.clearSelection(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		slog.ErrorContext(ctx, "logout could not clear all session state", "error", err)
	}
}

// clearSelection deletes both account keys, attempting the second even if the first fails.
func (s *Session) clearSelection(ctx context.Context) error {
	var errs []error
	if err := s.records.Delete(ctx, AccountIDKey); err != nil {
		errs = append(errs, fmt.Errorf("deleting account id: %w", err))
	}
	if err := s.records.Delete(ctx, AccountEmailKey); err != nil {
		errs = append(errs, fmt.Errorf("deleting account email: %w", err))
	}
	return errors.Join(errs...)
}

// AccessToken returns a fresh access token, refreshing it first if it expires
// within RefreshMargin. Fails with ErrNotLoggedIn without a refresh token or
// after a failed refresh, and with ErrNoAccountSelected when accountRequired is
// set and no account is selected.
func (s *Session) AccessToken(ctx context.Context, accountRequired bool) (string, error) {
	tok, err := s.token(ctx, accountRequired)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// token backs AccessToken and the oauth2.TokenSource adapter.
func (s *Session) token(ctx context.Context, accountRequired bool) (tok *oauth2.Token, err error) {
	defer func() { s.emit(Event{Op: OpAccessToken, Err: err}) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPreconditions(ctx, accountRequired); err != nil {
		return nil, err
	}
	if _, err := s.checkTokensLocked(ctx); err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken: s.accessToken,
		TokenType:   "Bearer",
		Expiry:      s.expiresAt,
	}, nil
}

// RefreshToken returns the stored refresh token after making sure the access
// token is fresh, so that rotation and forced logout are observed first.
func (s *Session) RefreshToken(ctx context.Context, accountRequired bool) (rt string, err error) {
	defer func() { s.emit(Event{Op: OpRefreshToken, Err: err}) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPreconditions(ctx, accountRequired); err != nil {
		return "", err
	}
	if _, err := s.checkTokensLocked(ctx); err != nil {
		return "", err
	}

	rt, err = s.storedRefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if rt == "" {
		return "", ErrNotLoggedIn
	}
	return rt, nil
}

func (s *Session) checkPreconditions(ctx context.Context, accountRequired bool) error {
	rt, err := s.storedRefreshToken(ctx)
	if err != nil {
		return err
	}
	if rt == "" {
		return ErrNotLoggedIn
	}
	if accountRequired && !s.IsAccountSelected(ctx) {
		return ErrNoAccountSelected
	}
	return nil
}

// checkTokensLocked refreshes when the access token expires within RefreshMargin.
// Reports whether a refresh was attempted.
func (s *Session) checkTokensLocked(ctx context.Context) (bool, error) {
	if s.expiresAt.Sub(s.now()) >= RefreshMargin {
		return false, nil
	}
	return true, s.refreshLocked(ctx)
}

// refreshLocked exchanges the stored refresh token for a new access token bound
// to the selected account, if any. Any failure logs the session out and yields
// ErrNotLoggedIn wrapping the cause.
func (s *Session) refreshLocked(ctx context.Context) error {
	rt, err := s.storedRefreshToken(ctx)
	if err == nil && rt == "" {
		err = errors.New("no refresh token stored")
	}
	if err == nil {
		err = s.exchangeRefreshToken(ctx, rt)
	}
	if err != nil && ctx.Err() != nil {
		// The caller gave up; that says nothing about the refresh token
		return err
	}
	if err != nil {
		slog.WarnContext(ctx, "token refresh failed, logging out", "error", err)
		s.logoutLocked(ctx)
		return fmt.Errorf("%w: %w", ErrNotLoggedIn, err)
	}
	return nil
}

func (s *Session) exchangeRefreshToken(ctx context.Context, rt string) error {
	form := url.Values{
		"grant_type":    {identity.GrantRefreshToken},
		"refresh_token": {rt},
	}
	if acc, ok := s.selection(ctx); ok {
		form.Set("bss_account", acc.ID)
	}

	endpoints, err := s.identity.Discover(ctx)
	if err != nil {
		return err
	}
	tok, err := s.identity.Exchange(ctx, endpoints.TokenURL, form)
	if err != nil {
		return err
	}

	// The provider may rotate the refresh token
	if tok.RefreshToken != "" && tok.RefreshToken != rt {
		if err := s.secrets.Set(ctx, s.service, RefreshTokenKey, tok.RefreshToken); err != nil {
			// The access token is still valid, but the next refresh will use a stale token
			slog.ErrorContext(ctx, "failed to persist rotated refresh token", "error", err)
		}
	}

	s.accessToken = tok.AccessToken
	s.expiresAt = tok.Expiry
	slog.DebugContext(ctx, "access token refreshed", "expires_at", tok.Expiry, "account_bound", form.Has("bss_account"))
	return nil
}

// Run checks token freshness every refresh interval while logged in, until ctx
// is done. Failures are logged; a failed refresh still logs the session out so
// the next caller observes a clean state.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.backgroundCheck(ctx)
		}
	}
}

func (s *Session) backgroundCheck(ctx context.Context) {
	if !s.IsLoggedIn(ctx) {
		return
	}

	s.mu.Lock()
	refreshed, err := s.checkTokensLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "background token refresh failed", "error", err)
	}
	if refreshed {
		s.emit(Event{Op: OpRefresh, Err: err})
	}
}
