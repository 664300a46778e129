package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"capserve/internal/config"
	"capserve/internal/model"
	"capserve/internal/server"
)

// Exit codes.
const (
	ExitSuccess          = 0
	ExitGenericError     = 1
	ExitConfigInvalid    = 2
	ExitRootInaccessible = 3
	ExitBindFailure      = 4
	ExitInvalidPath      = 5
	ExitIOFailure        = 6
	ExitCancelled        = 7
	ExitNotFound         = 8
)

// GlobalFlags holds flags shared across all commands.
type GlobalFlags struct {
	Dir        string
	ConfigPath string
	StateDir   string
	JSON       bool
	Quiet      bool
	LogFile    string
	LogLevel   string
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:   "capserve",
	Short: "Serve a folder of images and captions over loopback HTTP",
	Long: "capserve serves the files of a chosen folder on a loopback HTTP port, lists them,\n" +
		"writes caption text next to them and estimates caption token counts.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.Dir, "dir", "", "folder to serve (default: config root or working directory)")
	pf.StringVar(&globalFlags.ConfigPath, "config", "", "config file path (default: <user config dir>/capserve/config.toml)")
	pf.StringVar(&globalFlags.StateDir, "state-dir", "", "directory for connection.json")
	pf.BoolVar(&globalFlags.JSON, "json", false, "emit NDJSON events for automation")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false, "reduce output")
	pf.StringVar(&globalFlags.LogFile, "log-file", "", "write logs to this file (rotated)")
	pf.StringVar(&globalFlags.LogLevel, "log-level", "", "log level: debug|info|warn|error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pairsCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return execute(context.Background())
}

func execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	code := exitCode(err)
	reportError(rootCmd.ErrOrStderr(), rootCmd.OutOrStdout(), err, code)
	return code
}

func reportError(stderr, stdout io.Writer, err error, code int) {
	if globalFlags.JSON {
		data := map[string]interface{}{"message": err.Error(), "exit_code": code}
		if kind := model.KindOf(err); kind != "" {
			data["kind"] = string(kind)
		}
		newEmitter(stdout).emitLevel("error", "error", data)
		return
	}
	st := newStyles(stderr, false)
	fmt.Fprintln(stderr, st.errPrefix(), err)
}

// exitError carries an explicit exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var bindErr *server.BindError
	switch {
	case errors.Is(err, config.ErrInvalid):
		return ExitConfigInvalid
	case errors.As(err, &bindErr):
		return ExitBindFailure
	case errors.Is(err, model.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, model.ErrInvalidPath):
		return ExitInvalidPath
	case errors.Is(err, model.ErrIOFailure):
		return ExitIOFailure
	case errors.Is(err, model.ErrDialogCancelled):
		return ExitCancelled
	default:
		return ExitGenericError
	}
}
