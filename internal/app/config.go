package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/cloudsession/internal/identity"
	"github.com/florianilch/cloudsession/internal/recordstore"
	"github.com/florianilch/cloudsession/internal/secretstore"
	"github.com/florianilch/cloudsession/internal/session"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// SecretBackend selects where the refresh token is kept.
type SecretBackend string

const (
	SecretBackendAuto    SecretBackend = "auto"
	SecretBackendKeyring SecretBackend = "keyring"
	SecretBackendFile    SecretBackend = "file"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 4100
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigSecretBackend   = SecretBackendAuto
	DefaultConfigUpstreamBaseURL = "https://resource-controller.cloud.ibm.com"

	configDirName = "cloudsession"
)

// IdentityConfig describes the IAM provider.
type IdentityConfig struct {
	Issuer       string        `json:"issuer" validate:"required,url"`
	AccountsURL  string        `json:"accounts_url" validate:"required,url"`
	ClientID     string        `json:"client_id" validate:"required"`
	ClientSecret string        `json:"client_secret"`
	Timeout      time.Duration `json:"timeout" validate:"gt=0"`
}

// StorageConfig describes where session state is persisted.
type StorageConfig struct {
	// Secrets selects the refresh token backend; auto prefers the OS keyring.
	Secrets     SecretBackend `json:"secrets" validate:"required,oneof=auto keyring file"`
	SecretsFile string        `json:"secrets_file"`
	// RecordsFile holds the non-secret account selection.
	RecordsFile string `json:"records_file" validate:"required"`
	Service     string `json:"service" validate:"required"`
}

// RefreshConfig holds background refresh configuration.
type RefreshConfig struct {
	Interval time.Duration `json:"interval" validate:"gt=0"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds the API the gateway forwards to.
type UpstreamConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	// AccountOptional lets the gateway forward tokens that are not bound to an account.
	AccountOptional bool `json:"account_optional"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json otel"`
	Identity  IdentityConfig `json:"identity"`
	Storage   StorageConfig  `json:"storage"`
	Refresh   RefreshConfig  `json:"refresh"`
	Server    ServerConfig   `json:"server"`
	Shutdown  ShutdownConfig `json:"shutdown"`
	Upstream  UpstreamConfig `json:"upstream"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Identity.Issuer == "" {
		c.Identity.Issuer = identity.DefaultIssuer
	}
	if c.Identity.AccountsURL == "" {
		c.Identity.AccountsURL = identity.DefaultAccountsURL
	}
	if c.Identity.ClientID == "" {
		c.Identity.ClientID = identity.DefaultClientID
		if c.Identity.ClientSecret == "" {
			c.Identity.ClientSecret = identity.DefaultClientSecret
		}
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = identity.DefaultTimeout
	}
	if c.Storage.Secrets == "" {
		c.Storage.Secrets = DefaultConfigSecretBackend
	}
	if c.Storage.Service == "" {
		c.Storage.Service = session.DefaultService
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = session.DefaultRefreshInterval
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultConfigUpstreamBaseURL
	}

	// File locations default to the per-user config directory
	if c.Storage.RecordsFile == "" || (c.Storage.SecretsFile == "" && c.Storage.Secrets != SecretBackendKeyring) {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("storage file paths required (auto-detect failed: %w)", err)
		}
		if c.Storage.RecordsFile == "" {
			c.Storage.RecordsFile = filepath.Join(configDir, configDirName, "state.toml")
		}
		if c.Storage.SecretsFile == "" && c.Storage.Secrets != SecretBackendKeyring {
			c.Storage.SecretsFile = filepath.Join(configDir, configDirName, "secrets.json")
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Storage.Secrets != SecretBackendKeyring && c.Storage.SecretsFile == "" {
		return fmt.Errorf("storage.secrets_file required for %s secret storage", c.Storage.Secrets)
	}

	return nil
}

// NewSecretStore creates the refresh token store described by the storage configuration.
func (s *StorageConfig) NewSecretStore() (secretstore.Store, error) {
	switch s.Secrets {
	case SecretBackendKeyring:
		return secretstore.NewKeyringStore(), nil
	case SecretBackendFile:
		return secretstore.NewFileStore(s.SecretsFile)
	case SecretBackendAuto:
		store, backend, err := secretstore.Auto(s.Service, s.SecretsFile)
		if err != nil {
			return nil, err
		}
		slog.Debug("secret storage selected", "backend", backend)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported secret storage: %s", s.Secrets)
	}
}

// NewRecordStore creates the account record store.
func (s *StorageConfig) NewRecordStore() (recordstore.Store, error) {
	return recordstore.NewFileStore(s.RecordsFile)
}

// NewIdentityClient creates the IAM client described by the identity configuration.
func (i *IdentityConfig) NewIdentityClient() *identity.Client {
	return identity.New(
		identity.WithIssuer(i.Issuer),
		identity.WithClientCredentials(i.ClientID, i.ClientSecret),
		identity.WithTimeout(i.Timeout),
	)
}
