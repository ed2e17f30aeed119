package config

import "strings"

// ValidationResult separates hard errors from advisory warnings, letting a config-reload
// watch surface non-fatal warnings to an operator without rejecting the reload outright.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate runs the same checks as the load-time validator plus advisory warnings.
func Validate(cfg *Config) ValidationResult {
	if cfg == nil {
		return ValidationResult{Errors: []string{"config is nil"}}
	}

	var errs []string
	var warns []string

	if cfg.Connection.UnixSocket == "" && cfg.Connection.Host == "" && len(cfg.Connection.ClusterAddrs) == 0 {
		errs = append(errs, "connection.unix_socket, connection.host, or connection.cluster_addrs is required")
	}
	if strings.ContainsAny(cfg.Connection.HomeBase, "{}*?[]") {
		errs = append(errs, "connection.home_base must not contain { } * ? [ ]")
	}
	if cfg.Workers.PoolSize <= 0 {
		errs = append(errs, "workers.pool_size must be > 0")
	}

	if cfg.Connection.UnixSocket != "" && (cfg.Connection.Host != "" || len(cfg.Connection.ClusterAddrs) > 0) {
		warns = append(warns, "connection.unix_socket takes precedence over host/cluster_addrs")
	}
	if cfg.Stream.DefaultTrim <= 0 {
		warns = append(warns, "stream.default_trim should be > 0 to bound memory use")
	}
	if cfg.Workers.QueueDepth < cfg.Workers.PoolSize {
		warns = append(warns, "workers.queue_depth smaller than workers.pool_size may cause frequent blocking submits")
	}
	if cfg.Watchdog.Enabled && cfg.Watchdog.TTLSeconds <= 0 {
		errs = append(errs, "watchdog.ttl_seconds must be > 0 when watchdog.enabled is true")
	}
	if cfg.Connection.Password == "" {
		warns = append(warns, "connection.password is empty")
	}

	return ValidationResult{Errors: errs, Warnings: warns}
}
