package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// REQPROXY_BASE_URL.
const EnvPrefix = "REQPROXY"

// Config is the resolved runtime configuration.
type Config struct {
	// BaseURL is what relative request URLs resolve against.
	BaseURL string `mapstructure:"base_url"`

	// Timeout bounds each request. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are sent with every request. Values may reference
	// environment variables as $VAR or ${VAR}.
	Headers map[string]string `mapstructure:"headers"`

	// Verbosity is the logr level, 0 through 5.
	Verbosity int `mapstructure:"verbosity"`

	// LogFile receives logs from the TUI, which owns the terminal.
	LogFile string `mapstructure:"log_file"`

	// SearchPath is the type-ahead endpoint, relative to BaseURL.
	SearchPath string `mapstructure:"search_path"`

	// Theme is the glamour style used to render response bodies.
	Theme string `mapstructure:"theme"`

	// MetricsPort serves prometheus metrics on /metrics. Zero disables it.
	MetricsPort int `mapstructure:"metrics_port"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		BaseURL:    "http://localhost:8080",
		Timeout:    30 * time.Second,
		Headers:    map[string]string{},
		Verbosity:  0,
		LogFile:    filepath.Join(os.TempDir(), "reqproxy.log"),
		SearchPath: "/search",
		Theme:      "dracula",
	}
}

// flagKeys maps flag names onto viper keys.
var flagKeys = map[string]string{
	"base-url":     "base_url",
	"timeout":      "timeout",
	"verbosity":    "verbosity",
	"log-file":     "log_file",
	"metrics-port": "metrics_port",
}

// RegisterFlags adds the config flags to fs. Pass the same set to Load
// after parsing it.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("base-url", d.BaseURL, "base URL relative requests resolve against")
	fs.Duration("timeout", d.Timeout, "per-request timeout, 0 to disable")
	fs.IntP("verbosity", "v", d.Verbosity, "log verbosity, 0-5")
	fs.String("log-file", d.LogFile, "log file path")
	fs.Int("metrics-port", d.MetricsPort, "serve prometheus metrics on this port, 0 to disable")
	fs.StringArrayP("header", "H", nil, "extra request header as key=value, repeatable")
}

// Load resolves configuration from, lowest precedence first: defaults,
// the config file, REQPROXY_* environment variables and flags that were
// set explicitly. fs may be nil.
//
// The config file is REQPROXY_CONFIG when set, otherwise
// $HOME/.config/reqproxy/config.yaml if it exists.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("headers", d.Headers)
	v.SetDefault("verbosity", d.Verbosity)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("search_path", d.SearchPath)
	v.SetDefault("theme", d.Theme)
	v.SetDefault("metrics_port", d.MetricsPort)

	v.SetConfigType("yaml")
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "reqproxy"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}

	if fs != nil && fs.Lookup("header") != nil {
		pairs, err := fs.GetStringArray("header")
		if err != nil {
			return Config{}, fmt.Errorf("read header flag: %w", err)
		}
		extra, err := ParseHeaders(pairs)
		if err != nil {
			return Config{}, err
		}
		for k, val := range extra {
			c.Headers[k] = val
		}
	}

	for k, val := range c.Headers {
		c.Headers[k] = expandEnv(val)
	}
	return c, nil
}

// ParseHeaders turns key=value pairs into a map. Later keys win.
func ParseHeaders(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q, want key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnv replaces $VAR and ${VAR} with their values. Unset variables
// are left as written.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}
