package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"capserve/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented config.toml with the defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration and where each value comes from",
	Args:  cobra.NoArgs,
	RunE:  runConfigPrint,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPrintCmd)
	configCmd.AddCommand(configPathCmd)
}

func configFilePath() (string, error) {
	if globalFlags.ConfigPath != "" {
		return filepath.Abs(globalFlags.ConfigPath)
	}
	return config.Path()
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return withExit(ExitConfigInvalid, fmt.Errorf("%s already exists (use --force to overwrite)", path))
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		newEmitter(out).emit("config_written", map[string]interface{}{"path": path})
		return nil
	}
	fmt.Fprintln(out, "Wrote", path)
	return nil
}

func runConfigPrint(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fields := config.EffectiveFields(cfg, config.LoadOptions{Path: globalFlags.ConfigPath})

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		newEmitter(out).emit("config", map[string]interface{}{"fields": fields})
		return nil
	}
	st := newStyles(out, false)
	for _, f := range fields {
		value := f.Value
		if value == "" {
			value = `""`
		}
		fmt.Fprintf(out, "%s = %s %s\n", f.Key, value, st.dim("("+string(f.Source)+")"))
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
