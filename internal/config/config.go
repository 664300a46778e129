// Package config loads capserve settings. Precedence, lowest first:
// defaults, config.toml, .env, .env.local, CAPSERVE_* environment
// variables. Command-line flags are applied by the caller on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"capserve/internal/discover"
	"capserve/internal/state"
	"capserve/internal/tokens"
)

const (
	DefaultListen            = "127.0.0.1:0"
	DefaultReadHeaderTimeout = "10s"
	DefaultLogLevel          = "info"
	FileName                 = "config.toml"
)

type Config struct {
	Root      string          `toml:"root"`
	StateDir  string          `toml:"state_dir"`
	Server    ServerConfig    `toml:"server"`
	List      ListConfig      `toml:"list"`
	Tokenizer TokenizerConfig `toml:"tokenizer"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Listen            string `toml:"listen"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
}

type ListConfig struct {
	MaxEntries   int      `toml:"max_entries"`
	OnEntryError string   `toml:"on_entry_error"`
	Exclude      []string `toml:"exclude"`
}

type TokenizerConfig struct {
	Kind string `toml:"kind"`
}

// LogConfig controls the logger. An empty File logs to stderr.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

func Default() Config {
	stateDir, err := state.DefaultDir()
	if err != nil {
		stateDir = filepath.Join(".", "."+state.DirName)
	}
	return Config{
		Root:     "",
		StateDir: stateDir,
		Server: ServerConfig{
			Listen:            DefaultListen,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
		},
		List: ListConfig{
			MaxEntries:   discover.DefaultMaxEntries,
			OnEntryError: discover.Skip.String(),
		},
		Tokenizer: TokenizerConfig{Kind: tokens.DefaultKind},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Path returns <user config dir>/capserve/config.toml.
func Path() (string, error) {
	dir, err := state.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// Path of config.toml. Empty means Path().
	Path string
	// EnvDir holds .env and .env.local. Empty means the working directory.
	EnvDir string
	// SkipEnv ignores dotenv files and the process environment.
	SkipEnv bool
}

// Load merges defaults, config.toml and the environment.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	path, err := resolvePath(opts.Path)
	if err != nil {
		return Config{}, err
	}
	if err := mergeFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if opts.SkipEnv {
		return cfg, nil
	}
	if err := mergeEnv(&cfg, newEnvLookup(opts.EnvDir)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return path, nil
	}
	return Path()
}

func mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return nil
}

// envLookup resolves a variable from the process environment first, then
// .env.local, then .env.
type envLookup struct {
	dotEnvLocal map[string]string
	dotEnv      map[string]string
}

func newEnvLookup(dir string) envLookup {
	return envLookup{
		dotEnvLocal: readDotFile(filepath.Join(dir, ".env.local")),
		dotEnv:      readDotFile(filepath.Join(dir, ".env")),
	}
}

func (l envLookup) get(key string) (string, FieldSource) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), SourceEnv
	}
	if v := strings.TrimSpace(l.dotEnvLocal[key]); v != "" {
		return v, SourceDotEnvLocal
	}
	if v := strings.TrimSpace(l.dotEnv[key]); v != "" {
		return v, SourceDotEnv
	}
	return "", ""
}

// readDotFile returns nil when the file does not exist.
func readDotFile(name string) map[string]string {
	vals, err := godotenv.Read(name)
	if err != nil {
		return nil
	}
	return vals
}

func mergeEnv(cfg *Config, env envLookup) error {
	for _, fd := range fieldDefs {
		v, src := env.get(fd.EnvVar)
		if src == "" {
			continue
		}
		if err := fd.set(cfg, v); err != nil {
			return fmt.Errorf("%w: %s (from %s): %v", ErrInvalid, fd.EnvVar, src, err)
		}
	}
	return nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
