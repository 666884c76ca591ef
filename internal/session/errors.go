package session

import "errors"

var (
	// ErrNotLoggedIn is returned when no refresh token is stored, including after a
	// failed refresh forced a logout.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoAccountSelected is returned when an account is required but none is selected.
	ErrNoAccountSelected = errors.New("no account selected")

	// ErrNoAccounts is returned by SelectAccount when the identity owns no accounts.
	ErrNoAccounts = errors.New("no accounts available")

	// ErrCancelled is returned by interactive callbacks to decline the step.
	// Operations receiving it report a no-op instead of an error.
	ErrCancelled = errors.New("cancelled")
)
