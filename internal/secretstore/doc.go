// Package secretstore provides storage backends for long-lived secrets such as
// IAM refresh tokens, addressed by (service, key).
//
// Supports two backends with different security and deployment tradeoffs:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, Secret Service)
//   - File: Per-user file with atomic writes and 0600 permissions, for hosts without a keyring
//
// Auto probes the keyring once and falls back to the file backend when the native
// manager is unavailable. Callers never need to know which backend is active.
package secretstore
