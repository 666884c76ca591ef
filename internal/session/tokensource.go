package session

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource adapts a Session to oauth2.TokenSource. Every Token call goes
// through AccessToken, so refresh and forced logout behave exactly as for
// direct callers.
type TokenSource struct {
	session         *Session
	accountRequired bool
}

// Compile-time check to ensure TokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*TokenSource)(nil)

// TokenSource returns an oauth2.TokenSource backed by s, e.g. for oauth2.Transport.
func (s *Session) TokenSource(accountRequired bool) *TokenSource {
	return &TokenSource{session: s, accountRequired: accountRequired}
}

// Token returns a fresh bearer token.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	// oauth2.TokenSource.Token() has no context parameter (legacy interface limitation)
	return ts.session.token(context.Background(), ts.accountRequired)
}
