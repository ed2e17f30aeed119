// Package config loads the redis-adapter's connection and runtime settings from a YAML
// file, with environment-variable overrides and an optional hot-reload watch.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Stream     StreamConfig     `yaml:"stream"`
	Workers    WorkersConfig    `yaml:"workers"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConnectionConfig holds the external connection options consumed from configuration
// (spec §6): a Unix socket path or host/port, credentials, timeout, and pool size. The
// Unix socket path, when present, takes precedence over host/port.
type ConnectionConfig struct {
	UnixSocket      string   `yaml:"unix_socket"`
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ClusterAddrs    []string `yaml:"cluster_addrs"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	TimeoutMillis   int      `yaml:"timeout_millis"`
	PoolSize        int      `yaml:"pool_size"`
	PreferCluster   bool     `yaml:"prefer_cluster"`
	HomeBase        string   `yaml:"home_base"`
}

type StreamConfig struct {
	DefaultTrim        int64 `yaml:"default_trim"`
	BlockTimeoutMillis int   `yaml:"block_timeout_millis"`
}

type WorkersConfig struct {
	PoolSize   int `yaml:"pool_size"`
	QueueDepth int `yaml:"queue_depth"`
}

type ReconnectConfig struct {
	BackoffMillis    int `yaml:"backoff_millis"`
	MaxBackoffMillis int `yaml:"max_backoff_millis"`
}

type WatchdogConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Plain bool   `yaml:"plain"`
}

// Load searches, in order, REDISADAPTER_CONFIG (or REDISADAPTER_CONFIG_PATH),
// /etc/redis-adapter/config.yaml, and ./config.yaml, and loads the first one found.
//
// If onReload is given (at most the first is used), Load additionally installs a
// debounced fsnotify watch on the resolved file: on change it re-loads, re-validates
// (logging any advisory warnings), and — if the reload is valid — invokes onReload with
// the fresh Config. A reload that fails to parse or fails validation is logged and
// discarded; the caller keeps running on its last-good configuration.
func Load(onReload ...func(*Config)) (*Config, string, error) {
	path := os.Getenv("REDISADAPTER_CONFIG")
	if path == "" {
		path = os.Getenv("REDISADAPTER_CONFIG_PATH")
	}

	candidates := []string{}
	if path != "" {
		candidates = append(candidates, path)
	}
	candidates = append(candidates,
		"/etc/redis-adapter/config.yaml",
		"./config.yaml",
	)

	var selected string
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			selected = candidate
			break
		}
	}
	if selected == "" {
		return nil, "", errors.New("config file not found")
	}

	cfg, err := LoadFromPath(selected)
	if err != nil {
		return nil, "", err
	}

	if len(onReload) > 0 && onReload[0] != nil {
		watchConfig(selected, onReload[0])
	}

	return cfg, selected, nil
}

// watchConfig debounces rapid writes to path (the way the corpus debounces its own config
// watch) before re-loading, re-validating, and invoking onReload. It watches both path and
// its directory so an editor's atomic rename-over-replace is also caught. The watch runs
// for the remaining process lifetime; there is no stop handle, since the adapter has no
// concept of unloading its own configuration.
func watchConfig(path string, onReload func(*Config)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Default().Error("config watcher setup failed", "error", err)
		return
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		log.Default().Error("config watcher setup failed", "error", err)
		_ = watcher.Close()
		return
	}
	_ = watcher.Add(path)

	go func() {
		defer watcher.Close()

		var mu sync.Mutex
		var timer *time.Timer
		reload := func() {
			cfg, err := LoadFromPath(path)
			if err != nil {
				log.Default().Error("config reload failed", "path", path, "error", err)
				return
			}
			result := Validate(cfg)
			for _, w := range result.Warnings {
				log.Default().Warn("config reload warning", "path", path, "warning", w)
			}
			if len(result.Errors) > 0 {
				log.Default().Error("config reload rejected", "path", path, "errors", result.Errors)
				return
			}
			onReload(cfg)
		}

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(500*time.Millisecond, reload)
				mu.Unlock()
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if watchErr != nil {
					log.Default().Error("config watcher error", "error", watchErr)
				}
			}
		}
	}()
}

func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Connection.Host == "" && cfg.Connection.UnixSocket == "" && len(cfg.Connection.ClusterAddrs) == 0 {
		cfg.Connection.Host = "127.0.0.1"
	}
	if cfg.Connection.Port == 0 {
		cfg.Connection.Port = 6379
	}
	if cfg.Connection.TimeoutMillis == 0 {
		cfg.Connection.TimeoutMillis = int((3 * time.Second).Milliseconds())
	}
	if cfg.Connection.PoolSize == 0 {
		cfg.Connection.PoolSize = 10
	}
	if cfg.Connection.HomeBase == "" {
		cfg.Connection.HomeBase = "ADAPTER"
	}

	if cfg.Stream.DefaultTrim == 0 {
		cfg.Stream.DefaultTrim = 1000
	}
	if cfg.Stream.BlockTimeoutMillis == 0 {
		cfg.Stream.BlockTimeoutMillis = 1000
	}

	if cfg.Workers.PoolSize == 0 {
		cfg.Workers.PoolSize = 4
	}
	if cfg.Workers.QueueDepth == 0 {
		cfg.Workers.QueueDepth = 256
	}

	if cfg.Reconnect.BackoffMillis == 0 {
		cfg.Reconnect.BackoffMillis = 200
	}
	if cfg.Reconnect.MaxBackoffMillis == 0 {
		cfg.Reconnect.MaxBackoffMillis = 5000
	}

	if cfg.Watchdog.TTLSeconds == 0 {
		cfg.Watchdog.TTLSeconds = 30
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if val := strings.TrimSpace(os.Getenv("REDISADAPTER_HOST")); val != "" {
		cfg.Connection.Host = val
	}
	if val := strings.TrimSpace(os.Getenv("REDISADAPTER_PASSWORD")); val != "" {
		cfg.Connection.Password = val
	}
	if val := strings.TrimSpace(os.Getenv("REDISADAPTER_CLUSTER")); val != "" {
		if enabled, ok := parseEnvBool(val); ok {
			cfg.Connection.PreferCluster = enabled
		}
	}
}

func parseEnvBool(val string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

// validate runs Validate and collapses any hard errors into one error for LoadFromPath's
// signature; advisory warnings are silently dropped here; the hot-reload path in
// watchConfig calls Validate directly so it can log them instead.
func validate(cfg *Config) error {
	result := Validate(cfg)
	if len(result.Errors) > 0 {
		return errors.New(strings.Join(result.Errors, "; "))
	}
	return nil
}
