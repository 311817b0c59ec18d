// Package config loads the TOML configuration file and resolves it against
// built-in per-provider endpoint defaults. The file only has to carry what
// the defaults cannot know, which in the common case is a client ID and
// secret per provider.
package config

import "fmt"

// Config is the decoded config file.
type Config struct {
	// DataDir overrides the platform default for the account database.
	DataDir string `toml:"data_dir"`

	// LogLevel is debug, info, warn or error. Empty means info.
	LogLevel string `toml:"log_level"`

	// Providers holds one section per provider, keyed by provider name.
	Providers map[string]ProviderSection `toml:"providers"`
}

// ProviderSection is one [providers.<name>] block. All endpoint fields are
// optional overrides of the built-in defaults; tests use them to point a
// provider at a local fixture server.
type ProviderSection struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURL  string   `toml:"redirect_url"`
	Scopes       []string `toml:"scopes"`

	AuthURL     string `toml:"auth_url"`
	TokenURL    string `toml:"token_url"`
	RevokeURL   string `toml:"revoke_url"`
	APIBase     string `toml:"api_base"`
	ContentBase string `toml:"content_base"`
}

// DefaultConfig returns a Config with no provider sections.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderSection{},
	}
}

// knownLogLevels are the accepted log_level values.
var knownLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate rejects unknown provider section names and log levels.
func Validate(cfg *Config) error {
	if !knownLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level %q (use debug, info, warn or error)", cfg.LogLevel)
	}

	for name := range cfg.Providers {
		if _, ok := endpointDefaults[name]; !ok {
			return fmt.Errorf("unknown provider section %q (known: %s)", name, knownProviderNames())
		}
	}

	return nil
}
