package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Vault     VaultConfig       `yaml:"vault"`
	Database  DatabaseConfig    `yaml:"database"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Rerank    RerankConfig      `yaml:"rerank"`
	Search    SearchConfig      `yaml:"search"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := c.Rerank.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
	// Exclude lists folder prefixes skipped during scans, in addition to
	// the built-in .obsidian/.trash/.git exclusions.
	Exclude []string `yaml:"exclude"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DatabaseConfig holds SQLite database configuration for the note index.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// GraphSnapshot is an optional path where the link graph is persisted
	// after each full scan. Empty disables snapshotting.
	GraphSnapshot string `yaml:"graph_snapshot"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// EmbeddingConfig holds embedding provider configuration.
//
// When APIKey is empty, semantic search is unavailable and only keyword
// ranking is used; the server still starts.
type EmbeddingConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	return nil
}

// RerankConfig holds optional reranker configuration.
type RerankConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Validate validates the rerank configuration.
func (c *RerankConfig) Validate() error {
	if c.Enabled && c.APIKey == "" {
		return fmt.Errorf("rerank: enabled but api_key is empty")
	}
	return nil
}

// SearchConfig holds default search parameters.
type SearchConfig struct {
	// Alpha is the default semantic weight in [0,1].
	Alpha float64 `yaml:"alpha"`
	// TopK is the default result count.
	TopK int `yaml:"top_k"`
	// CacheSize bounds the in-memory query result cache.
	CacheSize int `yaml:"cache_size"`
	// IndexWorkers bounds the embedding worker pool used during scans.
	IndexWorkers int `yaml:"index_workers"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Alpha, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.TopK, validation.Min(1)),
		validation.Field(&c.CacheSize, validation.Min(1)),
		validation.Field(&c.IndexWorkers, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Database: DatabaseConfig{
			Path:          "./obsidian-index.db",
			GraphSnapshot: "./graph.json",
		},
		Embedding: EmbeddingConfig{
			Model: "voyage-3",
		},
		Rerank: RerankConfig{
			Model: "rerank-v3.5",
		},
		Search: SearchConfig{
			Alpha:        0.5,
			TopK:         10,
			CacheSize:    256,
			IndexWorkers: 4,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
