package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"capserve/internal/discover"
	"capserve/internal/server"
	"capserve/internal/tokens"
)

// ErrInvalid marks configuration errors; the CLI maps it to exit code 2.
var ErrInvalid = errors.New("CONFIG_INVALID")

// LogLevels are the accepted log.level values.
var LogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks every field and returns the first problem found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	for _, fd := range fieldDefs {
		if err := ValidateField(fd.Key, fd.get(cfg)); err != nil {
			return err
		}
	}
	if err := discover.ValidateExcludes(cfg.List.Exclude); err != nil {
		return fmt.Errorf("%w: list.exclude: %v", ErrInvalid, err)
	}
	return nil
}

// ValidateField checks whether value is valid for the given field key.
func ValidateField(key, value string) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s=%q: %s", ErrInvalid, key, value, fmt.Sprintf(format, args...))
	}
	switch key {
	case "server.listen":
		if err := server.CheckLoopback(strings.TrimSpace(value)); err != nil {
			return invalid("%v", err)
		}
	case "server.read_header_timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return invalid("must be a positive duration such as 10s")
		}
	case "list.max_entries":
		if n, err := atoiField(value); err != nil || n <= 0 || n > discover.DefaultMaxEntries {
			return invalid("must be between 1 and %d", discover.DefaultMaxEntries)
		}
	case "list.on_entry_error":
		if !slices.Contains(discover.Policies, value) {
			return invalid("allowed: %s", strings.Join(discover.Policies, ", "))
		}
	case "tokenizer.kind":
		if !slices.Contains(tokens.Kinds, value) {
			return invalid("allowed: %s", strings.Join(tokens.Kinds, ", "))
		}
	case "log.level":
		if !slices.Contains(LogLevels, value) {
			return invalid("allowed: %s", strings.Join(LogLevels, ", "))
		}
	case "log.max_size_mb", "log.max_backups", "log.max_age_days":
		if n, err := atoiField(value); err != nil || n < 0 {
			return invalid("must be a non-negative integer")
		}
	case "state_dir":
		if strings.TrimSpace(value) == "" {
			return invalid("must not be empty")
		}
	}
	return nil
}

func atoiField(value string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(value))
}

// ReadHeaderTimeout returns the parsed server.read_header_timeout.
func (c Config) ReadHeaderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadHeaderTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultReadHeaderTimeout)
	}
	return d
}
