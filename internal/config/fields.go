package config

import (
	"strconv"
	"strings"
)

// FieldSource indicates where a config value originates.
type FieldSource string

const (
	SourceDefault     FieldSource = "default"
	SourceConfigFile  FieldSource = "config.toml"
	SourceDotEnv      FieldSource = ".env"
	SourceDotEnvLocal FieldSource = ".env.local"
	SourceEnv         FieldSource = "env"
	SourceFlag        FieldSource = "flag"
)

// FieldInfo describes a single configurable field and its provenance.
type FieldInfo struct {
	Key    string      `json:"key"`
	EnvVar string      `json:"env_var"`
	Value  string      `json:"value"`
	Source FieldSource `json:"source"`
}

type fieldDef struct {
	Key    string
	EnvVar string
	get    func(*Config) string
	set    func(*Config, string) error
}

var fieldDefs = []fieldDef{
	{
		Key: "root", EnvVar: "CAPSERVE_ROOT",
		get: func(c *Config) string { return c.Root },
		set: func(c *Config, v string) error { c.Root = v; return nil },
	},
	{
		Key: "state_dir", EnvVar: "CAPSERVE_STATE_DIR",
		get: func(c *Config) string { return c.StateDir },
		set: func(c *Config, v string) error { c.StateDir = v; return nil },
	},
	{
		Key: "server.listen", EnvVar: "CAPSERVE_LISTEN",
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	{
		Key: "server.read_header_timeout", EnvVar: "CAPSERVE_READ_HEADER_TIMEOUT",
		get: func(c *Config) string { return c.Server.ReadHeaderTimeout },
		set: func(c *Config, v string) error { c.Server.ReadHeaderTimeout = v; return nil },
	},
	{
		Key: "list.max_entries", EnvVar: "CAPSERVE_MAX_ENTRIES",
		get: func(c *Config) string { return strconv.Itoa(c.List.MaxEntries) },
		set: intSetter(func(c *Config) *int { return &c.List.MaxEntries }),
	},
	{
		Key: "list.on_entry_error", EnvVar: "CAPSERVE_ON_ENTRY_ERROR",
		get: func(c *Config) string { return c.List.OnEntryError },
		set: func(c *Config, v string) error { c.List.OnEntryError = strings.ToLower(v); return nil },
	},
	{
		Key: "list.exclude", EnvVar: "CAPSERVE_EXCLUDE",
		get: func(c *Config) string { return strings.Join(c.List.Exclude, ",") },
		set: func(c *Config, v string) error { c.List.Exclude = splitList(v); return nil },
	},
	{
		Key: "tokenizer.kind", EnvVar: "CAPSERVE_TOKENIZER",
		get: func(c *Config) string { return c.Tokenizer.Kind },
		set: func(c *Config, v string) error { c.Tokenizer.Kind = v; return nil },
	},
	{
		Key: "log.level", EnvVar: "CAPSERVE_LOG_LEVEL",
		get: func(c *Config) string { return c.Log.Level },
		set: func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil },
	},
	{
		Key: "log.file", EnvVar: "CAPSERVE_LOG_FILE",
		get: func(c *Config) string { return c.Log.File },
		set: func(c *Config, v string) error { c.Log.File = v; return nil },
	},
	{
		Key: "log.max_size_mb", EnvVar: "CAPSERVE_LOG_MAX_SIZE_MB",
		get: func(c *Config) string { return strconv.Itoa(c.Log.MaxSizeMB) },
		set: intSetter(func(c *Config) *int { return &c.Log.MaxSizeMB }),
	},
	{
		Key: "log.max_backups", EnvVar: "CAPSERVE_LOG_MAX_BACKUPS",
		get: func(c *Config) string { return strconv.Itoa(c.Log.MaxBackups) },
		set: intSetter(func(c *Config) *int { return &c.Log.MaxBackups }),
	},
	{
		Key: "log.max_age_days", EnvVar: "CAPSERVE_LOG_MAX_AGE_DAYS",
		get: func(c *Config) string { return strconv.Itoa(c.Log.MaxAgeDays) },
		set: intSetter(func(c *Config) *int { return &c.Log.MaxAgeDays }),
	},
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnvVarForField returns the environment variable mapped to a field key.
func EnvVarForField(key string) string {
	for _, fd := range fieldDefs {
		if fd.Key == key {
			return fd.EnvVar
		}
	}
	return ""
}

// EffectiveFields reports each field of cfg and where its value came from,
// checked in precedence order: flag, env, .env.local, .env, config.toml,
// default. A value that differs from every file and environment source was
// set by a flag.
func EffectiveFields(cfg Config, opts LoadOptions) []FieldInfo {
	def := Default()
	fileCfg := def
	if path, err := resolvePath(opts.Path); err == nil {
		if err := mergeFile(&fileCfg, path); err != nil {
			// Report defaults rather than fail a status view on a malformed file.
			fileCfg = def
		}
	}
	env := newEnvLookup(opts.EnvDir)
	if opts.SkipEnv {
		env = envLookup{}
	}

	result := make([]FieldInfo, 0, len(fieldDefs))
	for _, fd := range fieldDefs {
		fi := FieldInfo{Key: fd.Key, EnvVar: fd.EnvVar, Value: fd.get(&cfg)}

		expected := fd.get(&def)
		fi.Source = SourceDefault
		if fileVal := fd.get(&fileCfg); fileVal != expected {
			expected, fi.Source = fileVal, SourceConfigFile
		}
		if !opts.SkipEnv {
			if v, src := env.get(fd.EnvVar); src != "" {
				probe := fileCfg
				if fd.set(&probe, v) == nil {
					expected, fi.Source = fd.get(&probe), src
				}
			}
		}
		if fi.Value != expected {
			fi.Source = SourceFlag
		}
		result = append(result, fi)
	}
	return result
}
