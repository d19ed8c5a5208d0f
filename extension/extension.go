// Package extension provides the Forge extension adapter for Billrun.
//
// It implements the forge.Extension interface to integrate Billrun
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.billrun" or
// "billrun" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	billrun "github.com/xraph/billrun"
	"github.com/xraph/billrun/store"
	"github.com/xraph/billrun/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "billrun"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Capped periodic billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Billrun as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *billrun.Engine
	store      store.Store
	engineOpts []billrun.Option
}

// New creates a new Billrun Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Billrun instance.
// This is nil until Register is called.
func (e *Extension) Engine() *billrun.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the billing engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts := e.buildEngineOpts()

	eng := billrun.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*billrun.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("billrun: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("billrun: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs billrun.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []billrun.Option {
	opts := make([]billrun.Option, 0, len(e.engineOpts)+1)

	if e.config.Currency != "" {
		opts = append(opts, billrun.WithCurrency(e.config.Currency))
	}
	if e.config.HookTimeout > 0 {
		opts = append(opts, billrun.WithHookTimeout(e.config.HookTimeout))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("billrun: configuration is required but not found in config files; " +
				"ensure 'extensions.billrun' or 'billrun' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("billrun: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("currency", e.config.Currency),
		forge.F("hook_timeout", e.config.HookTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.billrun" first (namespaced pattern).
	if cm.IsSet("extensions.billrun") {
		if err := cm.Bind("extensions.billrun", &cfg); err == nil {
			e.Logger().Debug("billrun: loaded config from file",
				forge.F("key", "extensions.billrun"),
			)
			return cfg, true
		}
		e.Logger().Warn("billrun: failed to bind extensions.billrun config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "billrun" key.
	if cm.IsSet("billrun") {
		if err := cm.Bind("billrun", &cfg); err == nil {
			e.Logger().Debug("billrun: loaded config from file",
				forge.F("key", "billrun"),
			)
			return cfg, true
		}
		e.Logger().Warn("billrun: failed to bind billrun config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.HookTimeout == 0 && programmaticConfig.HookTimeout != 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
