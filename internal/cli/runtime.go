package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"capserve/internal/appstate"
	"capserve/internal/commands"
	"capserve/internal/config"
	"capserve/internal/discover"
	"capserve/internal/logging"
	"capserve/internal/model"
	"capserve/internal/tokens"
)

// loadConfig applies flags over the loaded config, then validates. mutate
// runs before validation for command-specific flags.
func loadConfig(mutate ...func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: globalFlags.ConfigPath})
	if err != nil {
		return config.Config{}, withExit(ExitConfigInvalid, err)
	}
	if globalFlags.Dir != "" {
		cfg.Root = globalFlags.Dir
	}
	if globalFlags.StateDir != "" {
		cfg.StateDir = globalFlags.StateDir
	}
	if globalFlags.LogFile != "" {
		cfg.Log.File = globalFlags.LogFile
	}
	if globalFlags.LogLevel != "" {
		cfg.Log.Level = globalFlags.LogLevel
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	if err := config.Validate(&cfg); err != nil {
		return config.Config{}, withExit(ExitConfigInvalid, err)
	}
	return cfg, nil
}

// runtime bundles what every operation command needs.
type runtime struct {
	cfg     config.Config
	log     zerolog.Logger
	state   *appstate.RootState
	service *commands.Service
	closer  io.Closer
}

func (rt *runtime) Close() error {
	return rt.closer.Close()
}

func newRuntime(cmd *cobra.Command, cfg config.Config, picker commands.FolderPicker) (*runtime, error) {
	logOpts := logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stderr:     cmd.ErrOrStderr(),
	}
	if globalFlags.Quiet && cfg.Log.File == "" && cfg.Log.Level != "debug" {
		logOpts.Level = "warn"
	}
	logger, closer, err := logging.New(logOpts)
	if err != nil {
		return nil, withExit(ExitConfigInvalid, err)
	}

	if err := checkRoot(cfg.Root); err != nil {
		_ = closer.Close()
		return nil, err
	}
	st, err := appstate.New(cfg.Root)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	counter, err := tokens.New(cfg.Tokenizer.Kind)
	if err != nil {
		_ = closer.Close()
		return nil, withExit(ExitConfigInvalid, err)
	}
	policy, err := discover.ParsePolicy(cfg.List.OnEntryError)
	if err != nil {
		_ = closer.Close()
		return nil, withExit(ExitConfigInvalid, err)
	}
	listOpts := discover.Options{
		MaxEntries:   cfg.List.MaxEntries,
		OnEntryError: policy,
		Excludes:     cfg.List.Exclude,
		OnSkip: func(rel string, err error) {
			logger.Debug().Err(err).Str("path", rel).Msg("skipped unreadable entry")
		},
	}

	svc, err := commands.New(st, commands.Options{
		Picker:  picker,
		Counter: counter,
		List:    listOpts,
		Logger:  &logger,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, log: logger, state: st, service: svc, closer: closer}, nil
}

// checkRoot fails with exit code 3 unless root is empty (working directory)
// or an existing directory.
func checkRoot(root string) error {
	if root == "" {
		return nil
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return withExit(ExitRootInaccessible, model.NewError(model.KindNotFound, "open root", root, err))
		}
		return withExit(ExitRootInaccessible, fmt.Errorf("root directory inaccessible: %w", err))
	}
	if !info.IsDir() {
		return withExit(ExitRootInaccessible, fmt.Errorf("root %s is not a directory", root))
	}
	return nil
}
