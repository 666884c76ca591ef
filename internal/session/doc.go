// Package session owns the IAM login state of a host process.
//
// A Session moves between three states:
//
//	LoggedOut --login--> LoggedInNoAccount --SelectAccount--> LoggedInWithAccount
//
// and back to LoggedOut on Logout or whenever a token refresh fails. The refresh
// token lives in a secretstore.Store, the selected account id and its owner email
// in a recordstore.Store, and the short-lived access token only in memory.
//
// # Token freshness
//
// AccessToken refreshes synchronously whenever the in-memory token expires within
// RefreshMargin. Run performs the same check in the background on a fixed interval:
//
//	s := session.New(client, secrets, records)
//	go s.Run(ctx)
//	tok, err := s.AccessToken(ctx, true)
//
// All state-mutating operations are serialized per Session, so concurrent callers
// observing a stale token cause one refresh exchange, not several.
//
// # Interactive steps
//
// Passcode entry and account choice are injected as callbacks. A callback
// returning ErrCancelled aborts the operation without touching session state.
package session
