package extension

import "time"

// Config holds the Billrun extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.billrun" or "billrun" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Currency is the default currency code for profiles saved without
	// one (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// HookTimeout bounds how long a single plugin hook may run before
	// the engine gives up on it (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:    "usd",
		HookTimeout: 5 * time.Second,
	}
}
