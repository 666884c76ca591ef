package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/cloudsession/internal/identity"
	"github.com/florianilch/cloudsession/internal/recordstore"
	"github.com/florianilch/cloudsession/internal/session"
)

// seedPages registers n linked pages of perPage accounts each.
func (f *fixture) seedPages(n, perPage int) {
	next := accountsURL
	for p := range n {
		page := &identity.AccountsPage{}
		for i := range perPage {
			idx := p*perPage + i
			page.Resources = append(page.Resources, identity.AccountResource{
				ID:         fmt.Sprintf("acc-%d", idx),
				Name:       fmt.Sprintf("Account %d", idx),
				OwnerEmail: fmt.Sprintf("owner%d@example.com", idx),
			})
		}
		if p < n-1 {
			page.NextPageURL = fmt.Sprintf("%s?next_docid=%d", accountsURL, p+1)
		}
		f.identity.pages[next] = page
		next = page.NextPageURL
	}
}

func failChooser(t *testing.T) session.AccountChooser {
	return func(context.Context, []session.Account) (*session.Account, error) {
		t.Error("chooser must not be called")
		return nil, session.ErrCancelled
	}
}

func TestAccounts_FollowsPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPages(3, 2)
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))

	accounts, err := f.session.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 6)
	for i, acc := range accounts {
		assert.Equal(t, fmt.Sprintf("acc-%d", i), acc.ID)
		assert.Equal(t, fmt.Sprintf("owner%d@example.com", i), acc.Email)
	}
}

func TestAccounts_PaginationLoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identity.pages[accountsURL] = &identity.AccountsPage{
		Resources:   []identity.AccountResource{{ID: "acc-0"}},
		NextPageURL: accountsURL,
	}
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))

	_, err := f.session.Accounts(ctx)
	assert.Error(t, err)
}

func TestAccounts_NotLoggedIn(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Accounts(context.Background())
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestSelectAccount_ChooserSeesAllPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPages(3, 2)
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))

	var offered []session.Account
	ok, err := f.session.SelectAccount(ctx, func(_ context.Context, accounts []session.Account) (*session.Account, error) {
		offered = accounts
		return &accounts[4], nil
	})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, offered, 6)
	assert.Equal(t, "acc-0", offered[0].ID)
	assert.Equal(t, "acc-5", offered[5].ID)

	id, ok := f.session.Account(ctx)
	require.True(t, ok)
	assert.Equal(t, "acc-4", id)
	email, ok := f.session.Email(ctx)
	require.True(t, ok)
	assert.Equal(t, "owner4@example.com", email)
	assert.Equal(t, session.LoggedInWithAccount, f.session.State(ctx))
}

func TestSelectAccount_SingleAccountAutoSelects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPages(1, 1)
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))

	ok, err := f.session.SelectAccount(ctx, failChooser(t))
	require.NoError(t, err)
	assert.True(t, ok)

	id, ok := f.session.Account(ctx)
	require.True(t, ok)
	assert.Equal(t, "acc-0", id)

	// the token is re-scoped to the account right away
	assert.Equal(t, 1, f.identity.refreshCount())
	assert.Equal(t, "acc-0", f.identity.lastExchange().Get("bss_account"))

	tok, err := f.session.AccessToken(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "a-refreshed-1", tok)
}

func TestSelectAccount_NoAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identity.pages[accountsURL] = &identity.AccountsPage{}
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))

	ok, err := f.session.SelectAccount(ctx, failChooser(t))
	assert.ErrorIs(t, err, session.ErrNoAccounts)
	assert.False(t, ok)
	assert.False(t, f.session.IsAccountSelected(ctx))
}

func TestSelectAccount_CancelledKeepsSelection(t *testing.T) {
	tests := []struct {
		name   string
		choose session.AccountChooser
	}{
		{
			name: "cancelled",
			choose: func(context.Context, []session.Account) (*session.Account, error) {
				return nil, session.ErrCancelled
			},
		},
		{
			name: "nothing chosen",
			choose: func(context.Context, []session.Account) (*session.Account, error) {
				return nil, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.seedPages(1, 3)
			require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))
			f.selectStored(t, "acc-2", "owner2@example.com")

			var events int
			f.session.Subscribe(func(session.Event) { events++ })

			ok, err := f.session.SelectAccount(ctx, tt.choose)
			require.NoError(t, err)
			assert.False(t, ok)

			id, selected := f.session.Account(ctx)
			require.True(t, selected)
			assert.Equal(t, "acc-2", id)
			assert.Zero(t, f.identity.refreshCount())

			// only the token read for listing is reported
			assert.Equal(t, 1, events)
		})
	}
}

func TestSelectAccount_ChooserError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPages(1, 2)
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))

	boom := errors.New("terminal closed")
	_, err := f.session.SelectAccount(ctx, func(context.Context, []session.Account) (*session.Account, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.session.IsAccountSelected(ctx))
}

func TestSelectAccount_LogoutWhileChoosing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPages(1, 2)
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))

	_, err := f.session.SelectAccount(ctx, func(_ context.Context, accounts []session.Account) (*session.Account, error) {
		f.session.Logout(ctx)
		return &accounts[0], nil
	})
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
	assert.False(t, f.session.IsAccountSelected(ctx))
}

func TestSelectAccount_RefreshFailureLogsOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPages(1, 1)
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))
	f.identity.setRefreshErr(&identity.ProviderError{StatusCode: 403, Code: "BXNIM0514E"})

	var last session.Event
	f.session.Subscribe(func(ev session.Event) { last = ev })

	_, err := f.session.SelectAccount(ctx, failChooser(t))
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
	assert.False(t, f.session.IsLoggedIn(ctx))
	assert.Equal(t, session.OpSelectAccount, last.Op)
	assert.ErrorIs(t, last.Err, session.ErrNotLoggedIn)
}

func TestSelectAccount_PartialWriteKeepsPairConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPages(1, 1)
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))
	f.selectStored(t, "acc-old", "old@example.com")

	f.records.failSet(session.AccountIDKey, errors.New("disk full"))

	ok, err := f.session.SelectAccount(ctx, failChooser(t))
	require.Error(t, err)
	assert.False(t, ok)

	// the old id never pairs with the new email
	assert.False(t, f.session.IsAccountSelected(ctx))
	_, err = f.records.Get(ctx, session.AccountIDKey)
	assert.ErrorIs(t, err, recordstore.ErrNotFound)
	assert.True(t, f.session.IsLoggedIn(ctx))
	assert.Zero(t, f.identity.refreshCount())
}

func TestSelectAccount_ReselectReplacesPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPages(1, 1)
	require.NoError(t, f.session.LoginWithAPIKey(ctx, "k1"))
	f.selectStored(t, "acc-old", "old@example.com")

	ok, err := f.session.SelectAccount(ctx, failChooser(t))
	require.NoError(t, err)
	assert.True(t, ok)

	id, _ := f.session.Account(ctx)
	email, _ := f.session.Email(ctx)
	assert.Equal(t, "acc-0", id)
	assert.Equal(t, "owner0@example.com", email)
}
