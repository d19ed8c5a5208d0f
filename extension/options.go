package extension

import (
	"time"

	billrun "github.com/xraph/billrun"
	"github.com/xraph/billrun/plugin"
	"github.com/xraph/billrun/store"
)

// Option configures the Billrun Forge extension.
type Option func(*Extension)

// WithStore sets the store for the billing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a billrun.Option through to the underlying engine.
func WithEngineOption(opt billrun.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a billrun plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, billrun.WithPlugin(p))
	}
}

// WithDispatcher sets the invoice dispatcher on the underlying engine.
func WithDispatcher(d billrun.Dispatcher) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, billrun.WithDispatcher(d))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithCurrency sets the default currency for vendor profiles.
func WithCurrency(code string) Option {
	return func(e *Extension) { e.config.Currency = code }
}

// WithHookTimeout bounds how long a single plugin hook may run.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}
