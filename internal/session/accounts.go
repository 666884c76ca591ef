package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Account is an IAM account the logged-in identity can work in.
type Account struct {
	ID    string
	Name  string
	Email string
}

// AccountChooser picks one of accounts. Returning ErrCancelled or a nil account
// aborts the selection.
type AccountChooser func(ctx context.Context, accounts []Account) (*Account, error)

// Accounts lists every account visible to the logged-in identity, following
// pagination until the last page. No account selection is required.
func (s *Session) Accounts(ctx context.Context) ([]Account, error) {
	accessToken, err := s.AccessToken(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.listAccounts(ctx, accessToken)
}

// SelectAccount lists the available accounts and selects one: automatically when
// there is exactly one, otherwise through choose. The selection is persisted and
// the access token is refreshed to carry the new account scope. Returns false
// without error when choose cancels; session state is then left untouched.
func (s *Session) SelectAccount(ctx context.Context, choose AccountChooser) (bool, error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return false, err
	}

	var chosen *Account
	switch len(accounts) {
	case 0:
		return false, ErrNoAccounts
	case 1:
		chosen = &accounts[0]
	default:
		chosen, err = choose(ctx, accounts)
		if errors.Is(err, ErrCancelled) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("choosing account: %w", err)
		}
		if chosen == nil {
			return false, nil
		}
	}

	s.mu.Lock()
	err = s.selectLocked(ctx, *chosen)
	s.mu.Unlock()

	s.emit(Event{Op: OpSelectAccount, Err: err})
	if err != nil {
		return false, err
	}

	slog.InfoContext(ctx, "account selected", "account_id", chosen.ID, "account_name", chosen.Name)
	return true, nil
}

func (s *Session) selectLocked(ctx context.Context, acc Account) error {
	// a logout may have happened while the chooser was open
	rt, err := s.storedRefreshToken(ctx)
	if err != nil {
		return err
	}
	if rt == "" {
		return ErrNotLoggedIn
	}

	// Drop the old id before writing the new pair: any partial outcome leaves at
	// most an email, which reads as no selection
	if err := s.records.Delete(ctx, AccountIDKey); err != nil {
		return fmt.Errorf("clearing previous account id: %w", err)
	}
	if err := s.records.Set(ctx, AccountEmailKey, acc.Email); err != nil {
		return fmt.Errorf("storing account email: %w", err)
	}
	if err := s.records.Set(ctx, AccountIDKey, acc.ID); err != nil {
		return fmt.Errorf("storing account id: %w", err)
	}

	return s.refreshLocked(ctx)
}

// listAccounts accumulates every page of the account listing in page order.
func (s *Session) listAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var accounts []Account
	seen := make(map[string]bool)

	for next := s.accountsURL; next != ""; {
		if seen[next] {
			return nil, fmt.Errorf("account listing loops back to %s", next)
		}
		seen[next] = true

		page, err := s.identity.ListAccountsPage(ctx, accessToken, next)
		if err != nil {
			return nil, fmt.Errorf("listing accounts: %w", err)
		}
		for _, r := range page.Resources {
			accounts = append(accounts, Account{ID: r.ID, Name: r.Name, Email: r.OwnerEmail})
		}
		next = page.NextPageURL
	}

	return accounts, nil
}
