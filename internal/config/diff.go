package config

// ConfigDiff describes what changed between two configs. Hot-reloadable
// fields are tracked individually; address, TLS, database, search-endpoint,
// and MCP changes only set RestartRequired. A zero ConfigDiff means the two
// configs are effectively identical.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LimitsChanged covers the handler timeout and buffer knobs. These are
	// reported but applied only to components constructed after the reload.
	LimitsChanged bool

	CORSChanged      bool
	NewAllowedOrigin string

	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Limits != new.Limits {
		d.LimitsChanged = true
	}
	if old.CORS.AllowedOrigin != new.CORS.AllowedOrigin {
		d.CORSChanged = true
		d.NewAllowedOrigin = new.CORS.AllowedOrigin
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Database != new.Database ||
		old.Search != new.Search ||
		old.MCP != new.MCP ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = true
	}
	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
