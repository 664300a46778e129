package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"capserve/internal/captions"
)

var writeCmd = &cobra.Command{
	Use:   "write <path> [content|-]",
	Short: "Write caption text to a file under the root",
	Long: "Write caption text to a file under the root, replacing its content.\n" +
		"Without content, or with \"-\", the text is read from stdin.\n" +
		"With --batch, entries are read from a JSON array of {\"path\",\"content\"} objects\n" +
		"and written in order; the first failure stops the batch.",
	Args: cobra.RangeArgs(0, 2),
	RunE: runWrite,
}

var writeBatch string

func init() {
	writeCmd.Flags().StringVar(&writeBatch, "batch", "", "JSON file with caption entries (\"-\" for stdin)")
}

func runWrite(cmd *cobra.Command, args []string) error {
	entries, err := captionEntries(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	writeErr := rt.service.WriteCaptions(entries)
	written := len(entries)
	var batchErr *captions.BatchError
	if errors.As(writeErr, &batchErr) {
		written = batchErr.Index
	}

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		data := map[string]interface{}{"root": rt.state.Root(), "written": written, "total": len(entries)}
		if batchErr != nil {
			data["failed_index"] = batchErr.Index
			data["failed_path"] = batchErr.Path
		}
		newEmitter(out).emit("captions_written", data)
	} else if !globalFlags.Quiet {
		st := newStyles(out, false)
		fmt.Fprintln(out, st.stat("written", written), st.stat("total", len(entries)))
	}
	return writeErr
}

func captionEntries(stdin io.Reader, args []string) ([]captions.Caption, error) {
	if writeBatch != "" {
		if len(args) > 0 {
			return nil, errors.New("--batch does not take positional arguments")
		}
		var data []byte
		var err error
		if writeBatch == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(writeBatch)
		}
		if err != nil {
			return nil, fmt.Errorf("read batch: %w", err)
		}
		var entries []captions.Caption
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse batch: %w", err)
		}
		return entries, nil
	}

	switch len(args) {
	case 0:
		return nil, errors.New("write needs a path, or --batch")
	case 1:
		args = append(args, "-")
	}
	content := args[1]
	if content == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		content = string(data)
	}
	return []captions.Caption{{Path: args[0], Content: content}}, nil
}
