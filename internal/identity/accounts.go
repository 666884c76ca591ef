package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// AccountResource is one account as returned by the listing endpoint.
type AccountResource struct {
	ID         string
	Name       string
	OwnerEmail string
}

// AccountsPage is a single page of the account listing.
type AccountsPage struct {
	Resources []AccountResource
	// NextPageURL is absolute, or empty on the last page.
	NextPageURL string
}

type accountsResponse struct {
	NextURL   *string `json:"next_url"`
	Resources []struct {
		Metadata struct {
			GUID string `json:"guid"`
		} `json:"metadata"`
		Entity struct {
			Name        string `json:"name"`
			OwnerUserID string `json:"owner_userid"`
		} `json:"entity"`
	} `json:"resources"`
}

// ListAccountsPage fetches pageURL with accessToken as bearer credential.
// A relative next_url is resolved against pageURL.
func (c *Client) ListAccountsPage(ctx context.Context, accessToken, pageURL string) (*AccountsPage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid accounts page URL %q: %w", pageURL, err)
	}

	// oauth2.NewClient wraps the client taken from the context with a bearer transport
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(oauthCtx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.httpClient.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building accounts request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "list accounts", URL: pageURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newProviderError(resp.StatusCode, body)
	}

	var ar accountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, &TransportError{Op: "decoding accounts response", URL: pageURL, Err: err}
	}

	page := &AccountsPage{
		Resources: make([]AccountResource, 0, len(ar.Resources)),
	}
	for _, r := range ar.Resources {
		page.Resources = append(page.Resources, AccountResource{
			ID:         r.Metadata.GUID,
			Name:       r.Entity.Name,
			OwnerEmail: r.Entity.OwnerUserID,
		})
	}

	if ar.NextURL != nil && *ar.NextURL != "" {
		next, err := base.Parse(*ar.NextURL)
		if err != nil {
			return nil, fmt.Errorf("invalid next_url %q: %w", *ar.NextURL, err)
		}
		page.NextPageURL = next.String()
	}

	return page, nil
}
