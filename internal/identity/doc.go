// Package identity talks to the IBM Cloud IAM endpoints used to manage a session.
//
// Three operations are exposed:
//   - Discover: OIDC discovery of the token and passcode endpoints
//   - Exchange: form-encoded grant exchange against the token endpoint
//   - ListAccountsPage: one page of the account listing, authenticated with a bearer token
//
// IAM deviates from plain OAuth2 in ways that need custom handling:
//   - The passcode (one-time SSO code) endpoint is published as a non-standard discovery claim
//   - Grants use IBM-specific URNs (API key, passcode) next to password and refresh_token
//   - Refresh exchanges carry the target account (bss_account) to scope the access token
//
// Every request carries a Transaction-Id header for correlation with provider-side logs.
package identity
