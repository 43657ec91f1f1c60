// Package config provides configuration loading and management for SafeAlign.
// It supports loading from YAML files and environment variables, with
// hot-reload of selected fields using Viper.
package config

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/safealign/safealign/pkg/errors"
)

// ============================================================================
// Configuration Loader
// ============================================================================

// Loader manages configuration loading and reloading
type Loader struct {
	viper *viper.Viper

	config *Config
	mu     sync.RWMutex

	configFile   string
	watchEnabled bool

	reloadCallbacks []ReloadCallback
}

// ReloadCallback is called when configuration is reloaded
type ReloadCallback func(oldConfig, newConfig *Config)

// LoaderOptions defines options for the configuration loader
type LoaderOptions struct {
	// Configuration file path
	ConfigFile string

	// Enable watching for file changes
	EnableWatch bool

	// Environment variable prefix
	EnvPrefix string

	// Additional config paths to search
	ConfigPaths []string
}

// NewLoader creates a new configuration loader
func NewLoader(opts LoaderOptions) *Loader {
	v := viper.New()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/safealign")
		for _, path := range opts.ConfigPaths {
			v.AddConfigPath(path)
		}
	}

	envPrefix := opts.EnvPrefix
	if envPrefix == "" {
		envPrefix = "SAFEALIGN"
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		viper:        v,
		configFile:   opts.ConfigFile,
		watchEnabled: opts.EnableWatch,
	}
}

// Load loads configuration from all sources
func (l *Loader) Load() (*Config, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.WrapCode(err, errors.ErrConfigNotFound)
		}
		// no file: defaults plus environment only
	}

	cfg := Default()
	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, errors.WrapCode(err, errors.ErrConfigInvalid)
	}
	cfg.ApplyModelDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapCode(err, errors.ErrConfigInvalid)
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()

	if l.watchEnabled {
		l.watch()
	}

	return cfg, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnReload registers a callback invoked after a successful reload
func (l *Loader) OnReload(cb ReloadCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reloadCallbacks = append(l.reloadCallbacks, cb)
}

// watch reloads the configuration when the file changes. Only fields read
// through callbacks (e.g. the cost threshold) take effect mid-run; the
// trainer never re-reads structural fields after startup.
func (l *Loader) watch() {
	l.viper.OnConfigChange(func(in fsnotify.Event) {
		cfg := Default()
		if err := l.viper.Unmarshal(cfg); err != nil {
			return
		}
		cfg.ApplyModelDefaults()
		if err := cfg.Validate(); err != nil {
			return
		}

		l.mu.Lock()
		old := l.config
		l.config = cfg
		callbacks := append([]ReloadCallback(nil), l.reloadCallbacks...)
		l.mu.Unlock()

		for _, cb := range callbacks {
			cb(old, cfg)
		}
	})
	l.viper.WatchConfig()
}
