// Package config loads the product's TOML configuration, layering
// system, user, and command-line-override values through viper the way
// gcsfuse's cfg package layers flag and file values (cmd/root.go's
// cobra.OnInitialize(initConfig) + viper.Unmarshal pattern), adapted
// from YAML to TOML for this product's on-disk format.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/edenfs/kernelchannel/errorkind"
)

// Config is the set of recognized options. UseMononoke is parsed to a
// bool ("true" or "1"), ClientCertificateLocations is a []string (a TOML
// array, or a comma-separated override), and every other field is a
// string.
type Config struct {
	IgnoreFile             string
	SystemIgnoreFile       string
	EdenDir                string
	UseMononoke            bool
	ClientCertificateLocations []string
	ClientCertificate      string
}

// Loader resolves Config by merging, highest precedence first:
// command-line overrides, a user config file, a system config file, and
// hardcoded defaults. Unknown sections/keys are logged and ignored
// rather than rejected.
type Loader struct {
	Defaults Config
	Env      map[string]string // overrides os.Getenv for ${VAR} substitution in tests
	Logger   UnknownKeyLogger
}

// UnknownKeyLogger receives one call per unrecognized TOML key
// encountered while loading a config file.
type UnknownKeyLogger interface {
	LogUnknownKey(file, key string)
}

// noopLogger discards unknown-key notices; used when Loader.Logger is
// nil.
type noopLogger struct{}

func (noopLogger) LogUnknownKey(string, string) {}

var recognizedKeys = map[string]bool{
	"core.ignore-file":                  true,
	"core.system-ignore-file":           true,
	"core.eden-dir":                     true,
	"mononoke.use-mononoke":             true,
	"ssl.client-certificate-locations":  true,
	"ssl.client-certificate":            true,
}

// Load merges systemFile, userFile, and cliOverrides (any of which may
// be empty/nil) over l.Defaults, in the precedence order CLI > user >
// system > default, and applies environment substitution to path-typed
// fields. A malformed TOML file is a config error: its contents are
// skipped, the remaining layers are still merged, and the first such
// error is returned alongside that merged Config for the caller to log.
func (l *Loader) Load(systemFile, userFile string, cliOverrides map[string]string) (Config, error) {
	cfg := l.Defaults
	var firstErr error

	if systemFile != "" {
		if err := l.mergeFile(&cfg, systemFile); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if userFile != "" {
		if err := l.mergeFile(&cfg, userFile); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for key, value := range cliOverrides {
		l.applyKey(&cfg, key, value)
	}

	cfg.IgnoreFile = l.substitute(cfg.IgnoreFile)
	cfg.SystemIgnoreFile = l.substitute(cfg.SystemIgnoreFile)
	cfg.EdenDir = l.substitute(cfg.EdenDir)
	cfg.ClientCertificate = l.substitute(cfg.ClientCertificate)
	for i, loc := range cfg.ClientCertificateLocations {
		cfg.ClientCertificateLocations[i] = l.substitute(loc)
	}

	return cfg, firstErr
}

func (l *Loader) mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// An unset optional config layer is not an error; only a file
		// that exists but fails to parse raises a config-error kind.
		return nil
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errorkind.New(errorkind.KindConfig, "config: reading %s: %v", path, err)
	}

	logger := l.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	for _, key := range v.AllKeys() {
		if !recognizedKeys[key] {
			logger.LogUnknownKey(path, key)
			continue
		}
		l.applyKey(cfg, key, v.GetString(key))
		if key == "ssl.client-certificate-locations" {
			cfg.ClientCertificateLocations = v.GetStringSlice(key)
		}
	}
	return nil
}

func (l *Loader) applyKey(cfg *Config, key, value string) {
	switch key {
	case "core.ignore-file":
		cfg.IgnoreFile = value
	case "core.system-ignore-file":
		cfg.SystemIgnoreFile = value
	case "core.eden-dir":
		cfg.EdenDir = value
	case "mononoke.use-mononoke":
		cfg.UseMononoke = value == "true" || value == "1"
	case "ssl.client-certificate-locations":
		cfg.ClientCertificateLocations = strings.Split(value, ",")
	case "ssl.client-certificate":
		cfg.ClientCertificate = value
	}
}

// substitute expands ${HOME}, ${USER}, ${USER_ID}, and arbitrary
// environment variables in s.
func (l *Loader) substitute(s string) string {
	return os.Expand(s, func(name string) string {
		if l.Env != nil {
			if v, ok := l.Env[name]; ok {
				return v
			}
		}
		return os.Getenv(name)
	})
}

// ResolveClientCertificate returns the first existing path among
// ClientCertificateLocations, falling back to the legacy single
// ClientCertificate path if none of them exist.
func (cfg Config) ResolveClientCertificate(exists func(path string) bool) (string, bool) {
	for _, candidate := range cfg.ClientCertificateLocations {
		if candidate != "" && exists(candidate) {
			return candidate, true
		}
	}
	if cfg.ClientCertificate != "" && exists(cfg.ClientCertificate) {
		return cfg.ClientCertificate, true
	}
	return "", false
}
